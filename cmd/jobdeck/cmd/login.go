package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/exchange"
	"github.com/jobdeck/jobdeck/identity"
	"github.com/jobdeck/jobdeck/internal/browser"
	"github.com/jobdeck/jobdeck/internal/util"
)

var (
	loginEmail  string
	loginSSO    bool
	ssoURL      string
	ssoClientID string
	ssoScope    string
)

// ssoWait bounds how long we sit on the loopback listener for the
// provider's redirect before giving up.
const ssoWait = 2 * time.Minute

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password, or via the SSO provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if loginSSO {
			return ssoLogin(cmd.Context(), a)
		}
		return passwordLogin(cmd.Context(), a)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().BoolVar(&loginSSO, "sso", false, "Sign in through the SSO provider in a browser")
	loginCmd.Flags().StringVar(&ssoURL, "sso-url", "", "SSO authorize endpoint (default: <api-url>/auth/authorize)")
	loginCmd.Flags().StringVar(&ssoClientID, "client-id", "jobdeck-cli", "OAuth client id for the SSO flow")
	loginCmd.Flags().StringVar(&ssoScope, "scope", "profile", "OAuth scope for the SSO flow")
}

func passwordLogin(ctx context.Context, a *app) error {
	reader := bufio.NewReader(os.Stdin)

	email := loginEmail
	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	// Hold the passphrase in guarded memory until the request is built.
	password := memguard.NewBufferFromBytes([]byte(strings.TrimRight(line, "\r\n")))
	defer password.Destroy()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	creds, err := a.api.Login(ctx, email, util.Normalize(password.String()))
	if err != nil {
		if identity.IsUnauthorized(err) {
			return fmt.Errorf("invalid email or password")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	a.sessions.SetUser(creds.User, creds.AccessToken)
	fmt.Printf("Signed in as %s (%s)\n", creds.User.Email, creds.User.Role)
	return nil
}

func ssoLogin(ctx context.Context, a *app) error {
	listener, err := exchange.NewListener(a.logger)
	if err != nil {
		return err
	}
	defer listener.Close() //nolint:errcheck // best-effort shutdown

	authorize := ssoURL
	if authorize == "" {
		authorize = strings.TrimRight(apiURL, "/") + "/auth/authorize"
	}
	authorizeURL, state, err := exchange.BuildAuthorizeURL(authorize, ssoClientID, listener.RedirectURI(), ssoScope)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Opening your browser to complete sign-in…")
	if err := browser.Open(authorizeURL); err != nil {
		fmt.Fprintf(os.Stderr, "Could not open a browser; visit this URL instead:\n\n  %s\n\n", authorizeURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, ssoWait)
	defer cancel()
	redirectURL, err := listener.Wait(waitCtx)
	if err != nil {
		return err
	}
	if err := exchange.VerifyState(redirectURL, state); err != nil {
		return err
	}

	handler := exchange.New(a.api, a.sessions, consoleNavigator{}, exchange.WithLogger(a.logger))
	defer handler.Close()

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()
	result := handler.Run(runCtx, redirectURL)
	if result.Err != nil {
		return fmt.Errorf("%s", result.Err.Message)
	}
	return nil
}

// consoleNavigator is the CLI's navigation surface: there is no URL bar to
// clean and no views to route, so it reduces to user-facing messages.
type consoleNavigator struct{}

func (consoleNavigator) ClearFragment() {}

func (consoleNavigator) ToDashboard(u identity.User) {
	fmt.Printf("Signed in as %s (%s)\n", u.Email, u.Role)
}

func (consoleNavigator) ToLogin() {
	fmt.Fprintln(os.Stderr, "Run `jobdeck login` to sign in.")
}
