package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/engine"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

// MockTransport hands the engine batches pushed by the test and records requests.
type MockTransport struct {
	ConnectedCh chan struct{}
	BatchesCh   chan models.QuoteBatch

	Mu       sync.Mutex
	Requests []models.QuotesRequest
	notify   chan struct{}
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		ConnectedCh: make(chan struct{}, 1),
		BatchesCh:   make(chan models.QuoteBatch, 16),
		notify:      make(chan struct{}, 64),
	}
}

func (m *MockTransport) Connected() <-chan struct{}          { return m.ConnectedCh }
func (m *MockTransport) Batches() <-chan models.QuoteBatch { return m.BatchesCh }

func (m *MockTransport) Request(req models.QuotesRequest) {
	m.Mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// RequestCount returns how many requests were recorded.
func (m *MockTransport) RequestCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Requests)
}

// WaitRequests blocks until at least n requests were made or the timeout passes.
func (m *MockTransport) WaitRequests(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for m.RequestCount() < n {
		select {
		case <-m.notify:
		case <-deadline:
			return false
		}
	}
	return true
}

// LastRequest returns the most recent request.
func (m *MockTransport) LastRequest() models.QuotesRequest {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Requests) == 0 {
		return models.QuotesRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// MockRenderer records every frame.
type MockRenderer struct {
	Mu     sync.Mutex
	Frames []engine.Frame
	notify chan struct{}
}

func NewMockRenderer() *MockRenderer {
	return &MockRenderer{notify: make(chan struct{}, 256)}
}

func (m *MockRenderer) Render(f engine.Frame) {
	m.Mu.Lock()
	m.Frames = append(m.Frames, f)
	m.Mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *MockRenderer) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Frames)
}

func (m *MockRenderer) Last() engine.Frame {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Frames) == 0 {
		return engine.Frame{}
	}
	return m.Frames[len(m.Frames)-1]
}

// WaitFor blocks until a rendered frame satisfies cond or the timeout passes.
func (m *MockRenderer) WaitFor(cond func(engine.Frame) bool, timeout time.Duration) (engine.Frame, bool) {
	deadline := time.After(timeout)
	for {
		m.Mu.Lock()
		for i := len(m.Frames) - 1; i >= 0; i-- {
			if cond(m.Frames[i]) {
				f := m.Frames[i]
				m.Mu.Unlock()
				return f, true
			}
		}
		m.Mu.Unlock()
		select {
		case <-m.notify:
		case <-deadline:
			return engine.Frame{}, false
		}
	}
}

// MockSource serves a fixed history batch or error.
type MockSource struct {
	Batch models.QuoteBatch
	Err   error

	Mu       sync.Mutex
	Requests []models.QuotesRequest
}

func (m *MockSource) History(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Requests = append(m.Requests, req)
	return m.Batch, m.Err
}

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

// Batch builds a batch of n points per ticker with values start, start+1, ...
func Batch(tickers, n int, start float64, end, next int64) models.QuoteBatch {
	b := models.QuoteBatch{Quotes: make([][]float64, tickers), EndTimestampSec: end, NextIndex: next}
	for i := range b.Quotes {
		b.Quotes[i] = make([]float64, n)
		for j := range b.Quotes[i] {
			b.Quotes[i][j] = start + float64(j)
		}
	}
	return b
}
