package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/guard"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Verify access to the admin surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		g := guard.NewAdmin(a.sessions, a.store, guard.WithLogger(a.logger))
		decision := g.Evaluate(ctx, guard.Navigation{Path: "/admin"})
		switch decision.Outcome {
		case guard.OutcomeAuthorized:
			snap := a.sessions.Snapshot()
			fmt.Printf("Admin access granted for %s.\n", snap.User.Email)
			return nil
		case guard.OutcomeRedirectHome:
			return fmt.Errorf("your account does not have admin access")
		default:
			return fmt.Errorf("not signed in — run `jobdeck login`")
		}
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
}
