package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached session state without touching the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.sessions.WaitHydrated(cmd.Context(), session.HydrationCeiling)
		snap := a.sessions.Snapshot()

		if !snap.IsAuthenticated {
			fmt.Println("Not signed in.")
			return nil
		}

		fmt.Printf("Signed in as %s <%s> (%s)\n", snap.User.Name, snap.User.Email, snap.User.Role)
		if snap.LastAuthCheck != 0 {
			age := time.Since(time.UnixMilli(snap.LastAuthCheck)).Round(time.Second)
			freshness := "stale"
			if age < session.VerifyTTL {
				freshness = "fresh"
			}
			fmt.Printf("Last verified %s ago (%s)\n", age, freshness)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
