// Package watch implements the long-running watcher command.
package watch

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/promowatch/cmd/common"
	"github.com/jonesrussell/promowatch/internal/api"
	"github.com/jonesrussell/promowatch/internal/scheduler"
)

// Command returns the watch command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll sources on a schedule and redeem found promocodes",
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
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := deps.Config
	log := deps.Logger.WithComponent("watch")

	pipeline, err := common.NewPipeline(ctx, deps, cfg.Watch.AutoRedeem)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	sched := scheduler.New(cfg.Watch, scheduler.RunnerFunc(func(cycleCtx context.Context) {
		pipeline.Orchestrator.RunCycle(cycleCtx)
	}), deps.Logger)

	errCh := make(chan error, 2)

	if cfg.Server.Enabled {
		router := api.SetupRouter(deps.Logger, sched, pipeline.Ledger)
		server := api.NewServer(cfg.Server.Address, router, deps.Logger)
		go func() {
			if serveErr := server.Run(ctx); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- serveErr
			}
		}()
	}

	go func() {
		errCh <- sched.Run(ctx)
	}()

	log.Info("watcher started",
		"sources", cfg.EnabledPlatformCount(),
		"auto_redeem", cfg.Watch.AutoRedeem,
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
