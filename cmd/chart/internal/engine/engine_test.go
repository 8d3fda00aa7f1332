package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/engine"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/series"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/testutils"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/window"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	wait = 2 * time.Second
	T    = int64(1_700_000_000)
)

var chartCfg = models.ChartConfig{Tickers: []string{"ticker_00", "ticker_01"}, TickIntervalSec: 1}

type harness struct {
	eng       *engine.Engine
	transport *testutils.MockTransport
	renderer  *testutils.MockRenderer
	source    *testutils.MockSource
	cancel    context.CancelFunc
	done      chan error
}

func start(t *testing.T, scheme series.Scheme, source *testutils.MockSource, poll time.Duration) *harness {
	t.Helper()
	h := &harness{
		transport: testutils.NewMockTransport(),
		renderer:  testutils.NewMockRenderer(),
		source:    source,
		done:      make(chan error, 1),
	}
	opts := engine.Options{
		Config:       chartCfg,
		Scheme:       scheme,
		Width:        50,
		PollInterval: poll,
		History:      time.Hour,
		Transport:    h.transport,
		Renderer:     h.renderer,
		Logger:       zap.NewNop(),
		Clock:        &testutils.MockClock{CurrentTime: time.Unix(T, 0)},
	}
	if source != nil {
		opts.Source = source
	}
	h.eng = engine.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.eng.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
	h.done <- nil // later stop calls return immediately
}

func TestEngine_HistoryScenario(t *testing.T) {
	src := &testutils.MockSource{Batch: testutils.Batch(2, 60, 0, T, 60)}
	h := start(t, series.SchemeTimestamp, src, time.Hour)

	f, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 60 }, wait)
	require.True(t, ok, "no frame with history")

	assert.Equal(t, "ticker_00", f.Ticker)
	require.Len(t, f.Points, 50)
	assert.Equal(t, float64(10), f.Points[0])
	assert.Equal(t, float64(59), f.Points[49])
	assert.Equal(t, time.Unix(T, 0), f.End)
	assert.Equal(t, window.Live, f.State)

	require.Len(t, src.Requests, 1)
	require.NotNil(t, src.Requests[0].FromTimestampSec)
	assert.Equal(t, T-3600, *src.Requests[0].FromTimestampSec, "history starts one configured period back")

	h.eng.Scroll(window.Older)
	f, ok = h.renderer.WaitFor(func(f engine.Frame) bool { return f.Offset == 1 }, wait)
	require.True(t, ok)
	assert.Equal(t, float64(9), f.Points[0])
	assert.Equal(t, float64(58), f.Points[49])
	assert.Equal(t, time.Unix(T-1, 0), f.End)
	assert.Equal(t, window.Scrolled, f.State)
}

func TestEngine_ShortSeriesShowsEverything(t *testing.T) {
	src := &testutils.MockSource{Batch: testutils.Batch(2, 20, 0, T, 20)}
	h := start(t, series.SchemeTimestamp, src, time.Hour)

	f, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 20 }, wait)
	require.True(t, ok)
	assert.Len(t, f.Points, 20)

	h.eng.Scroll(window.Older)
	h.eng.Select(1)
	f, ok = h.renderer.WaitFor(func(f engine.Frame) bool { return f.TickerIndex == 1 }, wait)
	require.True(t, ok)
	assert.Equal(t, 0, f.Offset, "cannot scroll before a full window exists")
}

func TestEngine_ConnectRequestsImmediately(t *testing.T) {
	h := start(t, series.SchemeIndex, nil, time.Hour)

	h.transport.ConnectedCh <- struct{}{}
	require.True(t, h.transport.WaitRequests(1, wait), "no request after connect")

	req := h.transport.LastRequest()
	require.NotNil(t, req.FromTimestampSec, "unprimed index cursor asks by timestamp")
}

func TestEngine_PollsOnInterval(t *testing.T) {
	h := start(t, series.SchemeTimestamp, nil, 10*time.Millisecond)

	require.True(t, h.transport.WaitRequests(3, wait), "loop did not poll")
}

func TestEngine_StaleBatchDoesNotRender(t *testing.T) {
	h := start(t, series.SchemeIndex, nil, time.Hour)

	h.transport.BatchesCh <- testutils.Batch(2, 5, 0, T, 5)
	_, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 5 }, wait)
	require.True(t, ok)
	before := h.renderer.Count()

	h.transport.BatchesCh <- testutils.Batch(2, 5, 0, T, 5) // duplicate
	h.transport.BatchesCh <- testutils.Batch(2, 2, 5, T+2, 7)
	_, ok = h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 7 }, wait)
	require.True(t, ok)

	assert.Equal(t, before+1, h.renderer.Count(), "duplicate batch must not trigger a render")
	assert.Equal(t, 7, h.renderer.Last().Total)

	h.transport.ConnectedCh <- struct{}{}
	require.True(t, h.transport.WaitRequests(1, wait))
	req := h.transport.LastRequest()
	require.NotNil(t, req.FromIndex)
	assert.Equal(t, int64(7), *req.FromIndex)
}

func TestEngine_ScrolledViewSurvivesGrowth(t *testing.T) {
	h := start(t, series.SchemeTimestamp, &testutils.MockSource{Batch: testutils.Batch(2, 60, 0, T, 60)}, time.Hour)
	_, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 60 }, wait)
	require.True(t, ok)

	h.eng.Scroll(window.Older)
	h.eng.Scroll(window.Older)
	_, ok = h.renderer.WaitFor(func(f engine.Frame) bool { return f.Offset == 2 }, wait)
	require.True(t, ok)

	h.transport.BatchesCh <- testutils.Batch(2, 5, 60, T+5, 65)
	f, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 65 }, wait)
	require.True(t, ok)
	assert.Equal(t, 2, f.Offset)
	assert.Equal(t, window.Scrolled, f.State)
	assert.Equal(t, time.Unix(T+3, 0), f.End)
}

func TestEngine_HistoryFailureKeepsRunning(t *testing.T) {
	h := start(t, series.SchemeTimestamp, &testutils.MockSource{Err: errors.New("connection refused")}, time.Hour)

	f, ok := h.renderer.WaitFor(func(engine.Frame) bool { return true }, wait)
	require.True(t, ok)
	assert.False(t, f.HasData)
	assert.Empty(t, f.Points)

	h.transport.BatchesCh <- testutils.Batch(2, 3, 0, T, 3)
	_, ok = h.renderer.WaitFor(func(f engine.Frame) bool { return f.Total == 3 }, wait)
	assert.True(t, ok)
}

func TestEngine_TickerMismatchStopsRun(t *testing.T) {
	transport := testutils.NewMockTransport()
	eng := engine.New(engine.Options{
		Config:       chartCfg,
		PollInterval: time.Hour,
		Transport:    transport,
		Renderer:     testutils.NewMockRenderer(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	transport.BatchesCh <- testutils.Batch(3, 1, 0, T, 1)
	err := eng.Run(ctx)
	require.ErrorIs(t, err, series.ErrTickerMismatch)
}

func TestEngine_SelectOutOfRangeIgnored(t *testing.T) {
	h := start(t, series.SchemeTimestamp, nil, time.Hour)

	h.eng.Select(7)
	h.eng.Select(1)
	f, ok := h.renderer.WaitFor(func(f engine.Frame) bool { return f.TickerIndex == 1 }, wait)
	require.True(t, ok)
	assert.Equal(t, "ticker_01", f.Ticker)
}
