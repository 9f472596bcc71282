package claimer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// fakeDriver scripts the browser surface and records what the state machine
// did with it.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string

	challenge     bool
	challengeErr  error
	solveErr      error
	toastMessage  string
	toastSuccess  bool
	toastErr      error
	balanceBefore int64
	balanceAfter  int64
	balanceErr    error
	stepErrs      map[string]error
	closed        int
	enteredCode   string
	balanceReads  int
}

func (f *fakeDriver) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.stepErrs[name]
}

func (f *fakeDriver) RestoreSession(context.Context) error     { return f.record("restore") }
func (f *fakeDriver) OpenWalletPanel(context.Context) error    { return f.record("panel") }
func (f *fakeDriver) SelectPromocodeTab(context.Context) error { return f.record("tab") }

func (f *fakeDriver) EnterCode(_ context.Context, code string) error {
	f.enteredCode = code
	return f.record("enter")
}

func (f *fakeDriver) Submit(context.Context) error { return f.record("submit") }

func (f *fakeDriver) ChallengePresented(context.Context) (bool, error) {
	if err := f.record("detect"); err != nil {
		return false, err
	}
	return f.challenge, f.challengeErr
}

func (f *fakeDriver) SolveChallenge(ctx context.Context) error {
	if err := f.record("solve"); err != nil {
		return err
	}
	if f.solveErr != nil {
		return f.solveErr
	}
	return nil
}

func (f *fakeDriver) ReadToast(context.Context) (string, bool, error) {
	_ = f.record("toast")
	return f.toastMessage, f.toastSuccess, f.toastErr
}

func (f *fakeDriver) Balance(context.Context) (int64, error) {
	_ = f.record("balance")
	f.balanceReads++
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	if f.balanceReads > 1 {
		return f.balanceAfter, nil
	}
	return f.balanceBefore, nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func newTestClaimer(driver *fakeDriver) *Claimer {
	return NewWithDriver(func(context.Context) (Driver, error) {
		return driver, nil
	}, time.Second, logger.NewNoOp())
}

func TestClaim_SuccessWithoutChallenge(t *testing.T) {
	driver := &fakeDriver{
		toastMessage:  "Promocode activated",
		toastSuccess:  true,
		balanceBefore: 1000,
		balanceAfter:  1250,
	}

	outcome, err := newTestClaimer(driver).Claim(context.Background(), "SUMMER25")
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimSuccess, outcome.Status)
	assert.Contains(t, outcome.Message, "Promocode activated")
	assert.Contains(t, outcome.Message, "10.00 -> 12.50")
	assert.Equal(t, "SUMMER25", driver.enteredCode)
	assert.Equal(t, 1, driver.closed)
	assert.NotContains(t, driver.calls, "solve")
}

func TestClaim_SuccessWithChallenge(t *testing.T) {
	driver := &fakeDriver{
		challenge:    true,
		toastMessage: "Promocode activated",
		toastSuccess: true,
	}

	outcome, err := newTestClaimer(driver).Claim(context.Background(), "DROP2026")
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimSuccess, outcome.Status)
	assert.Contains(t, driver.calls, "solve")
	assert.Equal(t, 1, driver.closed)
}

func TestClaim_RejectedCode(t *testing.T) {
	driver := &fakeDriver{
		toastMessage: "Promocode is invalid or expired",
		toastSuccess: false,
	}

	outcome, err := newTestClaimer(driver).Claim(context.Background(), "EXPIRED1")
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimError, outcome.Status)
	assert.Equal(t, "Promocode is invalid or expired", outcome.Message)
	assert.Equal(t, 1, driver.closed)
}

func TestClaim_ChallengeSolveFails(t *testing.T) {
	driver := &fakeDriver{
		challenge: true,
		solveErr:  context.DeadlineExceeded,
	}

	_, err := newTestClaimer(driver).Claim(context.Background(), "SUMMER25")
	require.Error(t, err)

	assert.Contains(t, err.Error(), string(StateChallengeSolved))
	assert.Equal(t, 1, driver.closed, "browser must be released on failure")
	assert.NotContains(t, driver.calls, "toast")
}

func TestClaim_StepFailureAbortsRitual(t *testing.T) {
	driver := &fakeDriver{
		stepErrs: map[string]error{"tab": errors.New("tab not found")},
	}

	_, err := newTestClaimer(driver).Claim(context.Background(), "SUMMER25")
	require.Error(t, err)

	assert.Contains(t, err.Error(), string(StateTabSelected))
	assert.NotContains(t, driver.calls, "enter")
	assert.Equal(t, 1, driver.closed)
}

func TestClaim_BalanceReadFailureIsNotFatal(t *testing.T) {
	driver := &fakeDriver{
		balanceErr:   errors.New("wallet hidden"),
		toastMessage: "Promocode activated",
		toastSuccess: true,
	}

	outcome, err := newTestClaimer(driver).Claim(context.Background(), "SUMMER25")
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimSuccess, outcome.Status)
	assert.Equal(t, "Promocode activated", outcome.Message)
}

func TestClaim_SerializesRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	blocking := &fakeDriver{toastSuccess: true, toastMessage: "ok"}
	c := NewWithDriver(func(context.Context) (Driver, error) {
		close(started)
		<-release
		return blocking, nil
	}, time.Second, logger.NewNoOp())

	done := make(chan error, 1)
	go func() {
		_, err := c.Claim(context.Background(), "FIRST001")
		done <- err
	}()

	<-started
	_, err := c.Claim(context.Background(), "SECOND02")
	assert.ErrorIs(t, err, ErrClaimInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestClaim_DriverStartFailure(t *testing.T) {
	c := NewWithDriver(func(context.Context) (Driver, error) {
		return nil, errors.New("chrome not found")
	}, time.Second, logger.NewNoOp())

	_, err := c.Claim(context.Background(), "SUMMER25")
	assert.ErrorContains(t, err, "failed to start browser")
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		text    string
		want    int64
		wantErr bool
	}{
		{text: "$ 12.34", want: 1234},
		{text: "0.05", want: 5},
		{text: "1,50 zl", want: 150},
		{text: "balance: $1024.00", want: 102400},
		{text: "no money here", wantErr: true},
		{text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := parseBalance(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
