package engine

import (
	"context"
	"time"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/window"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

// Transport delivers batches and carries sync requests. Request must not block.
type Transport interface {
	Connected() <-chan struct{}
	Batches() <-chan models.QuoteBatch
	Request(req models.QuotesRequest)
}

// HistorySource serves the bulk history fetch done once at startup.
type HistorySource interface {
	History(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error)
}

// Renderer draws a frame. It is called from the engine goroutine and must return quickly.
type Renderer interface {
	Render(f Frame)
}

// Clock is injected for deterministic tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Frame is everything the chart needs for one draw.
type Frame struct {
	Ticker      string
	TickerIndex int
	TickerCount int
	Points      []float64
	Label       string
	End         time.Time // time of the last visible point
	Start       time.Time // time of the first visible point
	HasData     bool
	Offset      int
	State       window.State
	Total       int
}

// LabelLayout formats the trailing date label.
const LabelLayout = "2006-01-02 15:04:05"

type eventKind int

const (
	eventScroll eventKind = iota
	eventSelect
	eventResize
)

type event struct {
	kind  eventKind
	dir   window.Direction
	index int
	width int
}
