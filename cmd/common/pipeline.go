package common

import (
	"context"
	"fmt"

	"github.com/jonesrussell/promowatch/internal/claimer"
	"github.com/jonesrussell/promowatch/internal/extractor"
	"github.com/jonesrussell/promowatch/internal/ledger"
	"github.com/jonesrussell/promowatch/internal/notifier"
	"github.com/jonesrussell/promowatch/internal/orchestrator"
	"github.com/jonesrussell/promowatch/internal/sources"
	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
)

// Pipeline bundles the long-lived pieces of the scrape pipeline.
type Pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	Ledger       ledger.Interface
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	return p.Ledger.Close()
}

// NewPipeline wires sources, extractor, ledger, claimer, and notifier into
// an orchestrator. autoRedeem overrides the configured claim behavior; scan
// runs disable it regardless of configuration.
func NewPipeline(ctx context.Context, deps *CommandDeps, autoRedeem bool) (*Pipeline, error) {
	cfg := deps.Config
	log := deps.Logger

	if cfg.EnabledPlatformCount() == 0 {
		return nil, fmt.Errorf("no sources enabled; enable at least one platform")
	}

	led, err := ledger.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	ext, err := extractor.New(cfg.Extractor, log)
	if err != nil {
		led.Close()
		return nil, err
	}

	var redeemer orchestrator.Redeemer
	if autoRedeem {
		sessions := claimer.NewSessionStore(cfg.Claim.SessionFile, log)
		redeemer = claimer.New(cfg.Claim, sessions, log)
	}

	var announcer notifier.Interface
	if cfg.Notify.Enabled {
		announcer = notifier.NewDiscord(cfg.Notify.WebhookURL, log)
	}

	imageClient := apiclient.New(cfg.Sources.UserAgent)

	watch := cfg.Watch
	watch.AutoRedeem = autoRedeem

	orch := orchestrator.New(orchestrator.Options{
		Sources:   sources.NewEnabled(cfg, log),
		Ledger:    led,
		Extractor: ext,
		FetchImage: func(fetchCtx context.Context, mediaURL string) ([]byte, error) {
			return extractor.FetchImage(fetchCtx, imageClient, mediaURL)
		},
		Redeemer: redeemer,
		Notifier: announcer,
		Watch:    watch,
		Logger:   log,
	})

	return &Pipeline{Orchestrator: orch, Ledger: led}, nil
}
