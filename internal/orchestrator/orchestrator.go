// Package orchestrator runs one scrape cycle end to end: fetch the latest
// post from every enabled source, filter for promocode announcements,
// extract the code, record it in the ledger, claim it, and announce it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/extractor"
	"github.com/jonesrussell/promowatch/internal/ledger"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/metrics"
	"github.com/jonesrussell/promowatch/internal/notifier"
	"github.com/jonesrussell/promowatch/internal/sources"
)

// Redeemer drives one claim attempt to a terminal state.
type Redeemer interface {
	Claim(ctx context.Context, code string) (domain.ClaimOutcome, error)
}

// ImageFetcher downloads a post's media.
type ImageFetcher func(ctx context.Context, mediaURL string) ([]byte, error)

// SourceResult is the per-source slice of a cycle report.
type SourceResult struct {
	Source   string
	Platform domain.Platform
	Post     *domain.Post
	// Skipped explains why a fetched post was not processed.
	Skipped string
	Err     error
}

// HandledCode is one promocode the cycle carried through the pipeline.
type HandledCode struct {
	Code      string
	PostURL   string
	Outcome   *domain.ClaimOutcome
	Announced bool
}

// Report summarizes one cycle for logs and the scan command's table.
type Report struct {
	// CycleID correlates all log lines of one cycle.
	CycleID  string
	Started  time.Time
	Duration time.Duration
	Sources  []SourceResult
	Handled  []HandledCode
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	sources    []sources.Source
	ledger     ledger.Interface
	extractor  extractor.Interface
	fetchImage ImageFetcher
	redeemer   Redeemer
	notifier   notifier.Interface

	keyword      string
	cycleTimeout time.Duration
	autoRedeem   bool
	log          logger.Interface
}

// Options carries the pipeline dependencies.
type Options struct {
	Sources    []sources.Source
	Ledger     ledger.Interface
	Extractor  extractor.Interface
	FetchImage ImageFetcher
	// Redeemer may be nil; codes are then recorded and announced only.
	Redeemer Redeemer
	// Notifier may be nil when announcements are disabled.
	Notifier notifier.Interface
	Watch    config.WatchConfig
	Logger   logger.Interface
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		sources:      opts.Sources,
		ledger:       opts.Ledger,
		extractor:    opts.Extractor,
		fetchImage:   opts.FetchImage,
		redeemer:     opts.Redeemer,
		notifier:     opts.Notifier,
		keyword:      opts.Watch.Keyword,
		cycleTimeout: opts.Watch.CycleTimeout,
		autoRedeem:   opts.Watch.AutoRedeem,
		log:          opts.Logger.WithComponent("orchestrator"),
	}
}

// RunCycle executes one scrape cycle. Source failures are isolated: one
// platform erroring never stops the others. The returned report always
// covers every enabled source.
func (o *Orchestrator) RunCycle(ctx context.Context) *Report {
	started := time.Now()
	report := &Report{CycleID: uuid.NewString(), Started: started}

	cycleCtx, cancel := context.WithTimeout(ctx, o.cycleTimeout)
	defer cancel()

	report.Sources = o.fetchAll(cycleCtx)

	for i := range report.Sources {
		result := &report.Sources[i]
		if result.Err != nil || result.Post == nil {
			continue
		}

		handled, skip := o.process(cycleCtx, result.Post)
		result.Skipped = skip
		if handled != nil {
			report.Handled = append(report.Handled, *handled)
		}
	}

	report.Duration = time.Since(started)
	metrics.ObserveCycle(report.Duration)
	o.log.WithDuration(report.Duration).Info("cycle finished",
		"cycle_id", report.CycleID,
		"sources", len(report.Sources), "handled", len(report.Handled))
	return report
}

// fetchAll queries every source concurrently and collects results in the
// registry's stable order.
func (o *Orchestrator) fetchAll(ctx context.Context) []SourceResult {
	results := make([]SourceResult, len(o.sources))

	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			post, err := src.FetchLatest(ctx)
			results[i] = SourceResult{
				Source:   src.Name(),
				Platform: src.Platform(),
				Post:     post,
				Err:      err,
			}

			platform := string(src.Platform())
			if err != nil {
				metrics.FetchErrors.WithLabelValues(platform).Inc()
				o.log.WithError(err).Warn("source fetch failed", "source", src.Name())
				return
			}
			if post != nil {
				metrics.PostsFetched.WithLabelValues(platform).Inc()
			}
		}(i, src)
	}
	wg.Wait()

	return results
}

// process carries one fetched post through filter, extraction, ledger,
// claim, and announcement. It returns the handled code (if any) and a skip
// reason for the report.
func (o *Orchestrator) process(ctx context.Context, post *domain.Post) (*HandledCode, string) {
	log := o.log.With("post_url", post.URL)

	if !post.HasMedia() {
		return nil, "no media attached"
	}
	if !post.MentionsKeyword(o.keyword) {
		return nil, fmt.Sprintf("text does not mention %q", o.keyword)
	}
	metrics.Candidates.Inc()

	// A ledger that cannot be reached fails the post closed: claiming the
	// same code twice burns it, skipping a cycle does not.
	exists, err := o.ledger.ExistsByPostURL(ctx, post.URL)
	if err != nil {
		log.WithError(err).Error("ledger check failed, post skipped")
		return nil, "ledger unavailable"
	}
	if exists {
		return nil, "already handled"
	}

	code, err := o.extract(ctx, post)
	if err != nil {
		if errors.Is(err, extractor.ErrNoCode) {
			metrics.Extractions.WithLabelValues("no_code").Inc()
			return nil, "no code found in image"
		}
		metrics.Extractions.WithLabelValues("error").Inc()
		log.WithError(err).Error("extraction failed")
		return nil, "extraction failed"
	}
	metrics.Extractions.WithLabelValues("success").Inc()
	log = log.With("code", code)

	// Recording before claiming makes redemption at-most-once: a crash
	// between the two loses one claim, a crash the other way around would
	// retry a code the site already burned.
	promo := &domain.Promocode{Code: code, PostURL: post.URL}
	if err := o.ledger.Create(ctx, promo); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			return nil, "already handled"
		}
		log.WithError(err).Error("ledger write failed, claim not attempted")
		return nil, "ledger unavailable"
	}

	handled := &HandledCode{Code: code, PostURL: post.URL}

	if o.autoRedeem && o.redeemer != nil {
		outcome, claimErr := o.redeemer.Claim(ctx, code)
		if claimErr != nil {
			metrics.Claims.WithLabelValues("error").Inc()
			log.WithError(claimErr).Error("claim failed")
			outcome = domain.ClaimOutcome{Status: domain.ClaimError, Message: claimErr.Error()}
		} else {
			metrics.Claims.WithLabelValues(string(outcome.Status)).Inc()
		}
		handled.Outcome = &outcome
	}

	if o.notifier != nil {
		if notifyErr := o.notifier.Announce(ctx, promo, post); notifyErr != nil {
			metrics.NotifyErrors.Inc()
			log.WithError(notifyErr).Warn("announcement failed")
		} else {
			handled.Announced = true
		}
	}

	log.Info("promocode handled")
	return handled, ""
}

func (o *Orchestrator) extract(ctx context.Context, post *domain.Post) (string, error) {
	img, err := o.fetchImage(ctx, post.MediaURL)
	if err != nil {
		return "", err
	}
	return o.extractor.Extract(ctx, img)
}
