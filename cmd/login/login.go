// Package login implements the interactive session bootstrap command.
package login

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/promowatch/cmd/common"
	"github.com/jonesrussell/promowatch/internal/claimer"
)

// Command returns the login command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to the case site and save the session",
		Long: `Opens a visible browser window on the site so you can complete its login
flow. Once the logged-in account name appears, the session cookies are
saved for the watch and claim commands to restore.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(viper.GetBool("app.debug"))
			if err != nil {
				return err
			}
			return run(cmd.Context(), deps)
		},
	}
}

func run(ctx context.Context, deps *common.CommandDeps) error {
	cfg := deps.Config

	sessions := claimer.NewSessionStore(cfg.Claim.SessionFile, deps.Logger)
	nick, err := claimer.Login(ctx, cfg.Claim, sessions, deps.Logger)
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s, session saved to %s\n", nick, cfg.Claim.SessionFile)
	return nil
}
