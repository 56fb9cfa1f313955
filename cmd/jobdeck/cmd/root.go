package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/identity"
	"github.com/jobdeck/jobdeck/session"
	"github.com/jobdeck/jobdeck/store"
)

var (
	apiURL  string
	dataDir string
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "jobdeck",
	Short: "Jobdeck is the command-line client for the jobdeck job-search service",
	Long: `Jobdeck talks to the jobdeck backend: sign in (password or SSO),
inspect your session, and reach member and admin surfaces. Session state is
cached locally so repeated commands stay off the network.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("JOBDECK_API_URL", "https://api.jobdeck.io"), "Backend API base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", envOr("JOBDECK_DATA_DIR", defaultDataDir()), "Directory for persistent data")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for backend calls")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.jobdeck"
	}
	return filepath.Join(home, ".jobdeck")
}

// app bundles the wired subsystem shared by every command.
type app struct {
	logger   *slog.Logger
	store    *store.BoltStore
	api      *identity.Client
	sessions *session.Manager
}

// newApp opens the session store and wires the identity client and session
// container together. The client's token source reads the container's
// current token, so a logout strips the bearer from every later request.
func newApp() (*app, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.NewBoltStoreFromFile(filepath.Join(dataDir, "session.db"), apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	var sessions *session.Manager
	api := identity.New(apiURL,
		identity.WithTokenSource(func() string {
			if sessions == nil {
				return ""
			}
			return sessions.Token()
		}),
	)
	sessions = session.New(st, api, session.WithLogger(logger))

	return &app{
		logger:   logger,
		store:    st,
		api:      api,
		sessions: sessions,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing session store failed", slog.String("error", err.Error()))
	}
}
