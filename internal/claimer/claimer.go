// Package claimer redeems a promocode on the case site by driving a real
// browser through the wallet's redemption form, including the anti-bot
// challenge the form is gated behind.
package claimer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// State names one step of the redemption ritual. The ritual is strictly
// linear; a failed step aborts the run with the state it failed in.
type State string

const (
	StateInit              State = "init"
	StateSessionRestored   State = "session_restored"
	StatePanelOpen         State = "panel_open"
	StateTabSelected       State = "tab_selected"
	StateCodeEntered       State = "code_entered"
	StateSubmitted         State = "submitted"
	StateChallengeDetected State = "challenge_detected"
	StateChallengeSolved   State = "challenge_solved"
	StateResultObserved    State = "result_observed"
)

// ErrClaimInProgress is returned when a second claim is attempted while one
// is already running. Claims share one browser profile and must serialize.
var ErrClaimInProgress = errors.New("another claim is in progress")

// Driver is the browser automation surface the state machine runs against.
// The chromedp implementation is the real one; tests substitute a fake.
type Driver interface {
	// RestoreSession loads the site with any persisted login cookies.
	RestoreSession(ctx context.Context) error
	// OpenWalletPanel opens the wallet funds panel.
	OpenWalletPanel(ctx context.Context) error
	// SelectPromocodeTab switches the panel to the promocode tab.
	SelectPromocodeTab(ctx context.Context) error
	// EnterCode types the code into the redemption input.
	EnterCode(ctx context.Context, code string) error
	// Submit activates the redeem button.
	Submit(ctx context.Context) error
	// ChallengePresented reports whether the anti-bot challenge appeared.
	ChallengePresented(ctx context.Context) (bool, error)
	// SolveChallenge works the challenge widget until it clears.
	SolveChallenge(ctx context.Context) error
	// ReadToast waits for the site's result notification and returns its
	// text together with whether it signals success.
	ReadToast(ctx context.Context) (message string, ok bool, err error)
	// Balance returns the wallet balance currently displayed, in cents.
	Balance(ctx context.Context) (int64, error)
	// Close tears the browser down. Safe to call after a failed step.
	Close() error
}

// Claimer runs the redemption ritual.
type Claimer struct {
	newDriver   func(ctx context.Context) (Driver, error)
	stepTimeout time.Duration
	log         logger.Interface

	mu      sync.Mutex
	running bool
}

// New creates a claimer that opens a chromedp browser per run.
func New(cfg config.ClaimConfig, sessions *SessionStore, log logger.Interface) *Claimer {
	return &Claimer{
		newDriver: func(ctx context.Context) (Driver, error) {
			d, err := newChromeDriver(ctx, cfg, sessions, log)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		stepTimeout: cfg.StepTimeout,
		log:         log.WithComponent("claimer"),
	}
}

// NewWithDriver creates a claimer over a caller-supplied driver factory.
func NewWithDriver(factory func(ctx context.Context) (Driver, error), stepTimeout time.Duration, log logger.Interface) *Claimer {
	return &Claimer{
		newDriver:   factory,
		stepTimeout: stepTimeout,
		log:         log.WithComponent("claimer"),
	}
}

// Claim redeems the code and reports the site's verdict. Only one claim may
// run at a time; concurrent calls fail fast with ErrClaimInProgress rather
// than queueing against a browser that may be stuck.
func (c *Claimer) Claim(ctx context.Context, code string) (domain.ClaimOutcome, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return domain.ClaimOutcome{}, ErrClaimInProgress
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	started := time.Now()
	outcome, err := c.run(ctx, code)
	log := c.log.WithDuration(time.Since(started)).With("code", code)
	if err != nil {
		log.WithError(err).Error("claim failed")
		return outcome, err
	}
	log.Info("claim finished", "status", string(outcome.Status), "message", outcome.Message)
	return outcome, nil
}

func (c *Claimer) run(ctx context.Context, code string) (domain.ClaimOutcome, error) {
	driver, err := c.newDriver(ctx)
	if err != nil {
		return domain.ClaimOutcome{}, fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	state := StateInit

	step := func(next State, fn func(context.Context) error) error {
		stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
		defer cancel()
		if stepErr := fn(stepCtx); stepErr != nil {
			return fmt.Errorf("claim step %s: %w", next, stepErr)
		}
		state = next
		c.log.Debug("claim step done", "state", string(state))
		return nil
	}

	if err := step(StateSessionRestored, driver.RestoreSession); err != nil {
		return domain.ClaimOutcome{}, err
	}

	before, err := c.balance(ctx, driver)
	if err != nil {
		return domain.ClaimOutcome{}, err
	}

	if err := step(StatePanelOpen, driver.OpenWalletPanel); err != nil {
		return domain.ClaimOutcome{}, err
	}
	if err := step(StateTabSelected, driver.SelectPromocodeTab); err != nil {
		return domain.ClaimOutcome{}, err
	}
	if err := step(StateCodeEntered, func(stepCtx context.Context) error {
		return driver.EnterCode(stepCtx, code)
	}); err != nil {
		return domain.ClaimOutcome{}, err
	}
	if err := step(StateSubmitted, driver.Submit); err != nil {
		return domain.ClaimOutcome{}, err
	}

	presented := false
	if err := step(StateChallengeDetected, func(stepCtx context.Context) error {
		var detectErr error
		presented, detectErr = driver.ChallengePresented(stepCtx)
		return detectErr
	}); err != nil {
		return domain.ClaimOutcome{}, err
	}
	if presented {
		if err := step(StateChallengeSolved, driver.SolveChallenge); err != nil {
			return domain.ClaimOutcome{}, err
		}
	}

	var message string
	var ok bool
	if err := step(StateResultObserved, func(stepCtx context.Context) error {
		var readErr error
		message, ok, readErr = driver.ReadToast(stepCtx)
		return readErr
	}); err != nil {
		return domain.ClaimOutcome{}, err
	}

	outcome := domain.ClaimOutcome{Status: domain.ClaimError, Message: message}
	if ok {
		outcome.Status = domain.ClaimSuccess
		if after, balErr := c.balance(ctx, driver); balErr == nil && after > before {
			outcome.Message = fmt.Sprintf("%s (balance %s -> %s)",
				message, formatCents(before), formatCents(after))
		}
	}
	return outcome, nil
}

// balance reads the displayed wallet balance with the step timeout applied.
// A balance that cannot be read is 0, not an error: the read-back is
// informational and must never fail a claim.
func (c *Claimer) balance(ctx context.Context, driver Driver) (int64, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	cents, err := driver.Balance(stepCtx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.log.WithError(err).Warn("could not read wallet balance")
		return 0, nil
	}
	return cents, nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
