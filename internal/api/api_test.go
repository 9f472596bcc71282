package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/scheduler"
)

type fakeSchedule struct {
	forceErr  error
	forced    int
	restarted int
	status    scheduler.Status
}

func (f *fakeSchedule) ForceScrape() error {
	f.forced++
	return f.forceErr
}

func (f *fakeSchedule) RestartCountdown() { f.restarted++ }

func (f *fakeSchedule) Status() scheduler.Status { return f.status }

type fakeLedger struct {
	recent    []domain.Promocode
	recentErr error
}

func (f *fakeLedger) ExistsByPostURL(context.Context, string) (bool, error) { return false, nil }
func (f *fakeLedger) Create(context.Context, *domain.Promocode) error       { return nil }
func (f *fakeLedger) Close() error                                          { return nil }

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]domain.Promocode, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func newTestRouter(schedule *fakeSchedule, codes *fakeLedger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(logger.NewNoOp(), schedule, codes)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&fakeSchedule{}, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&fakeSchedule{}, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatus(t *testing.T) {
	schedule := &fakeSchedule{status: scheduler.Status{Running: true, CycleRuns: 7}}
	router := newTestRouter(schedule, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)

	var got scheduler.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, int64(7), got.CycleRuns)
}

func TestPromocodes(t *testing.T) {
	codes := &fakeLedger{recent: []domain.Promocode{
		{Code: "SUMMER25", PostURL: "https://x.com/csgocases/status/1", CreatedAt: time.Now()},
	}}
	router := newTestRouter(&fakeSchedule{}, codes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/promocodes", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SUMMER25")
}

func TestPromocodes_BadLimit(t *testing.T) {
	router := newTestRouter(&fakeSchedule{}, &fakeLedger{})

	for _, limit := range []string{"0", "-1", "101", "abc"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/promocodes?limit="+limit, http.NoBody))
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestPromocodes_LedgerError(t *testing.T) {
	router := newTestRouter(&fakeSchedule{}, &fakeLedger{recentErr: errors.New("down")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/promocodes", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestScrape(t *testing.T) {
	schedule := &fakeSchedule{}
	router := newTestRouter(schedule, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", http.NoBody))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, schedule.forced)
}

func TestScrape_Conflict(t *testing.T) {
	schedule := &fakeSchedule{forceErr: scheduler.ErrCycleInFlight}
	router := newTestRouter(schedule, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", http.NoBody))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCountdownRestart(t *testing.T) {
	schedule := &fakeSchedule{}
	router := newTestRouter(schedule, &fakeLedger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/countdown/restart", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, schedule.restarted)
}
