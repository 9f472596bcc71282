package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/extractor"
	"github.com/jonesrussell/promowatch/internal/ledger"
	"github.com/jonesrussell/promowatch/internal/logger"
)

type fakeSource struct {
	name     string
	platform domain.Platform
	post     *domain.Post
	err      error
}

func (f *fakeSource) Name() string              { return f.name }
func (f *fakeSource) Platform() domain.Platform { return f.platform }
func (f *fakeSource) FetchLatest(context.Context) (*domain.Post, error) {
	return f.post, f.err
}

type fakeLedger struct {
	existing  map[string]bool
	existsErr error
	createErr error
	created   []domain.Promocode
}

func (f *fakeLedger) ExistsByPostURL(_ context.Context, postURL string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[postURL], nil
}

func (f *fakeLedger) Create(_ context.Context, code *domain.Promocode) error {
	if f.createErr != nil {
		return f.createErr
	}
	code.CreatedAt = time.Now()
	f.created = append(f.created, *code)
	return nil
}

func (f *fakeLedger) Recent(context.Context, int) ([]domain.Promocode, error) { return nil, nil }
func (f *fakeLedger) Close() error                                            { return nil }

type fakeExtractor struct {
	code string
	err  error
}

func (f *fakeExtractor) Name() string { return "fake" }
func (f *fakeExtractor) Extract(context.Context, []byte) (string, error) {
	return f.code, f.err
}

type fakeRedeemer struct {
	outcome domain.ClaimOutcome
	err     error
	claimed []string
}

func (f *fakeRedeemer) Claim(_ context.Context, code string) (domain.ClaimOutcome, error) {
	f.claimed = append(f.claimed, code)
	return f.outcome, f.err
}

type fakeNotifier struct {
	err       error
	announced []string
}

func (f *fakeNotifier) Announce(_ context.Context, code *domain.Promocode, _ *domain.Post) error {
	if f.err != nil {
		return f.err
	}
	f.announced = append(f.announced, code.Code)
	return nil
}

func promoPost(url string) *domain.Post {
	return &domain.Post{
		Platform: domain.PlatformX,
		Author:   "csgocases",
		Text:     "Fresh promocode inside!",
		URL:      url,
		MediaURL: "https://pbs.twimg.com/media/code.jpg",
	}
}

type fixture struct {
	ledger   *fakeLedger
	redeemer *fakeRedeemer
	notifier *fakeNotifier
}

func newOrchestrator(t *testing.T, srcs []*fakeSource, fx *fixture, ext *fakeExtractor) *Orchestrator {
	t.Helper()

	opts := Options{
		Ledger:    fx.ledger,
		Extractor: ext,
		FetchImage: func(context.Context, string) ([]byte, error) {
			return []byte("image-bytes"), nil
		},
		Redeemer: fx.redeemer,
		Notifier: fx.notifier,
		Watch: config.WatchConfig{
			Keyword:      "promocode",
			CycleTimeout: 5 * time.Second,
			AutoRedeem:   true,
		},
		Logger: logger.NewNoOp(),
	}
	for _, s := range srcs {
		opts.Sources = append(opts.Sources, s)
	}
	return New(opts)
}

func defaultFixture() *fixture {
	return &fixture{
		ledger:   &fakeLedger{existing: map[string]bool{}},
		redeemer: &fakeRedeemer{outcome: domain.ClaimOutcome{Status: domain.ClaimSuccess, Message: "activated"}},
		notifier: &fakeNotifier{},
	}
}

func TestRunCycle_NewPostClaimedAndAnnounced(t *testing.T) {
	fx := defaultFixture()
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	require.Len(t, report.Handled, 1)
	handled := report.Handled[0]
	assert.Equal(t, "SUMMER25", handled.Code)
	assert.Equal(t, "https://x.com/csgocases/status/1", handled.PostURL)
	require.NotNil(t, handled.Outcome)
	assert.True(t, handled.Outcome.Succeeded())
	assert.True(t, handled.Announced)

	assert.Equal(t, []string{"SUMMER25"}, fx.redeemer.claimed)
	assert.Equal(t, []string{"SUMMER25"}, fx.notifier.announced)
	require.Len(t, fx.ledger.created, 1)
	assert.Equal(t, "https://x.com/csgocases/status/1", fx.ledger.created[0].PostURL)
}

func TestRunCycle_AlreadyHandledPostSkipped(t *testing.T) {
	fx := defaultFixture()
	fx.ledger.existing["https://x.com/csgocases/status/1"] = true
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Equal(t, "already handled", report.Sources[0].Skipped)
	assert.Empty(t, fx.redeemer.claimed)
	assert.Empty(t, fx.ledger.created)
}

func TestRunCycle_DuplicateCreateMeansAnotherWriterWon(t *testing.T) {
	fx := defaultFixture()
	fx.ledger.createErr = ledger.ErrDuplicate
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Equal(t, "already handled", report.Sources[0].Skipped)
	assert.Empty(t, fx.redeemer.claimed, "duplicate insert must not trigger a claim")
}

func TestRunCycle_NoMediaSkipped(t *testing.T) {
	fx := defaultFixture()
	post := promoPost("https://x.com/csgocases/status/1")
	post.MediaURL = ""
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: post}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Equal(t, "no media attached", report.Sources[0].Skipped)
}

func TestRunCycle_KeywordMissSkipped(t *testing.T) {
	fx := defaultFixture()
	post := promoPost("https://x.com/csgocases/status/1")
	post.Text = "unrelated announcement"
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: post}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Contains(t, report.Sources[0].Skipped, "does not mention")
}

func TestRunCycle_LedgerOutageFailsClosed(t *testing.T) {
	fx := defaultFixture()
	fx.ledger.existsErr = errors.New("connection refused")
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Equal(t, "ledger unavailable", report.Sources[0].Skipped)
	assert.Empty(t, fx.redeemer.claimed, "unknown dedup state must not claim")
}

func TestRunCycle_NoCodeInImage(t *testing.T) {
	fx := defaultFixture()
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{err: extractor.ErrNoCode}).
		RunCycle(context.Background())

	assert.Empty(t, report.Handled)
	assert.Equal(t, "no code found in image", report.Sources[0].Skipped)
	assert.Empty(t, fx.ledger.created, "nothing to record without a code")
}

func TestRunCycle_NotifyFailureIsNotFatal(t *testing.T) {
	fx := defaultFixture()
	fx.notifier.err = errors.New("webhook down")
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	require.Len(t, report.Handled, 1)
	assert.False(t, report.Handled[0].Announced)
	assert.Equal(t, []string{"SUMMER25"}, fx.redeemer.claimed)
}

func TestRunCycle_SourceFailureIsIsolated(t *testing.T) {
	fx := defaultFixture()
	broken := &fakeSource{name: "instagram:csgocases", platform: domain.PlatformInstagram, err: errors.New("login wall")}
	healthy := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{broken, healthy}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	require.Len(t, report.Sources, 2)
	assert.Error(t, report.Sources[0].Err)
	require.Len(t, report.Handled, 1)
	assert.Equal(t, "SUMMER25", report.Handled[0].Code)
}

func TestRunCycle_ClaimErrorRecordedInOutcome(t *testing.T) {
	fx := defaultFixture()
	fx.redeemer.err = errors.New("browser crashed")
	src := &fakeSource{name: "x:csgocases", platform: domain.PlatformX, post: promoPost("https://x.com/csgocases/status/1")}

	report := newOrchestrator(t, []*fakeSource{src}, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	require.Len(t, report.Handled, 1)
	outcome := report.Handled[0].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, domain.ClaimError, outcome.Status)
	assert.Contains(t, outcome.Message, "browser crashed")

	// The ledger row stays: the code was consumed by the attempt.
	require.Len(t, fx.ledger.created, 1)
}

func TestRunCycle_EmptySources(t *testing.T) {
	fx := defaultFixture()

	report := newOrchestrator(t, nil, fx, &fakeExtractor{code: "SUMMER25"}).
		RunCycle(context.Background())

	assert.Empty(t, report.Sources)
	assert.Empty(t, report.Handled)
	assert.NotZero(t, report.Duration)
}
