package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/guard"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		g := guard.NewProtected(a.sessions, a.store, guard.WithLogger(a.logger))
		decision := g.Evaluate(ctx, guard.Navigation{Path: "/me"})
		if decision.Outcome != guard.OutcomeAuthorized {
			return fmt.Errorf("not signed in — run `jobdeck login`")
		}

		snap := a.sessions.Snapshot()
		fmt.Printf("%s <%s> (%s)\n", snap.User.Name, snap.User.Email, snap.User.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
