// Package claim implements the manual claim command.
package claim

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/promowatch/cmd/common"
	"github.com/jonesrussell/promowatch/internal/claimer"
)

// Command returns the claim command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "claim CODE",
		Short: "Redeem a promocode in the browser",
		Long: `Drives the browser claim flow for a code you already know, bypassing
the sources and the ledger. Useful for codes announced outside the
watched accounts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps(viper.GetBool("app.debug"))
			if err != nil {
				return err
			}
			return run(cmd.Context(), deps, strings.ToUpper(args[0]))
		},
	}
}

func run(ctx context.Context, deps *common.CommandDeps, code string) error {
	cfg := deps.Config

	sessions := claimer.NewSessionStore(cfg.Claim.SessionFile, deps.Logger)
	c := claimer.New(cfg.Claim, sessions, deps.Logger)

	outcome, err := c.Claim(ctx, code)
	if err != nil {
		return err
	}

	if outcome.Succeeded() {
		fmt.Printf("claimed %s: %s\n", code, outcome.Message)
		return nil
	}
	return fmt.Errorf("claim rejected: %s", outcome.Message)
}
