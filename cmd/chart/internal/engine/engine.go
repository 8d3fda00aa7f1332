package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/series"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/window"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultHistory      = 24 * time.Hour
	eventBuffer         = 64
)

type Options struct {
	Config       models.ChartConfig
	Scheme       series.Scheme
	Width        int
	PollInterval time.Duration
	History      time.Duration
	Transport    Transport
	Source       HistorySource // optional
	Renderer     Renderer
	Logger       *zap.Logger
	Clock        Clock
}

// Engine owns the series store and the view. All state changes happen on
// the goroutine running Run; the exported methods only enqueue events.
type Engine struct {
	tickers  []string
	tick     time.Duration
	store    *series.Store
	view     *window.View
	selected int

	transport    Transport
	source       HistorySource
	renderer     Renderer
	logger       *zap.Logger
	pollInterval time.Duration

	events chan event
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}

	origin := opts.Clock.Now().Add(-opts.History).Unix()
	tick := time.Duration(opts.Config.TickIntervalSec * float64(time.Second))

	return &Engine{
		tickers:      opts.Config.Tickers,
		tick:         tick,
		store:        series.NewStore(opts.Config.Tickers, series.NewCursor(opts.Scheme, origin)),
		view:         window.NewView(opts.Width),
		transport:    opts.Transport,
		source:       opts.Source,
		renderer:     opts.Renderer,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		events:       make(chan event, eventBuffer),
	}
}

// Run fetches history, then serializes polling, batch arrival and UI events
// until ctx is done. It returns an error only for a protocol contract violation.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}
	e.render()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-e.transport.Connected():
			e.logger.Info("Transport connected, requesting quotes", zap.Stringer("cursor", e.store.Cursor()))
			e.request()

		case <-ticker.C:
			e.request()

		case b := <-e.transport.Batches():
			if err := e.merge(b); err != nil {
				return err
			}

		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if e.source == nil {
		return nil
	}
	req := e.store.Cursor().Request()
	b, err := e.source.History(ctx, req)
	if err != nil {
		// no history yet; the sync loop catches up from the same cursor
		e.logger.Warn("History fetch failed", zap.Error(err))
		return nil
	}
	e.logger.Info("History fetched", zap.Int("points", b.Points()), zap.Int64("next_index", b.NextIndex))
	return e.merge(b)
}

func (e *Engine) request() {
	e.transport.Request(e.store.Cursor().Request())
}

func (e *Engine) merge(b models.QuoteBatch) error {
	changed, err := e.store.Merge(b)
	if err != nil {
		e.logger.Error("Rejecting batch", zap.Error(err))
		return fmt.Errorf("merge batch: %w", err)
	}
	if !changed {
		e.logger.Debug("Skipping stale batch", zap.Int64("next_index", b.NextIndex),
			zap.Int64("end_timestamp_sec", b.EndTimestampSec), zap.Stringer("cursor", e.store.Cursor()))
		return nil
	}
	e.view.Reclamp(e.store.Len())
	e.render()
	return nil
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case eventScroll:
		e.view.Scroll(ev.dir, e.store.Len())
	case eventSelect:
		if ev.index < 0 || ev.index >= len(e.tickers) {
			e.logger.Warn("Ignoring selection out of range", zap.Int("index", ev.index))
			return
		}
		e.selected = ev.index
	case eventResize:
		e.view.Resize(ev.width, e.store.Len())
	}
	e.render()
}

func (e *Engine) render() {
	if e.renderer == nil {
		return
	}
	e.renderer.Render(e.frame())
}

func (e *Engine) frame() Frame {
	length := e.store.Len()
	w := e.view.Window(length)
	f := Frame{
		TickerIndex: e.selected,
		TickerCount: len(e.tickers),
		Offset:      e.view.Offset(),
		State:       e.view.State(),
		Total:       length,
	}
	if len(e.tickers) > 0 {
		f.Ticker = e.tickers[e.selected]
		// copied so the renderer never aliases the store
		f.Points = append([]float64(nil), w.Slice(e.store.Series(e.selected))...)
	}
	if watermark, ok := e.store.EndTime(); ok {
		f.HasData = true
		f.End = e.view.Label(length, watermark, e.tick)
		f.Start = window.LeadingTime(w, length, watermark, e.tick)
		f.Label = f.End.Local().Format(LabelLayout)
	}
	return f
}

// Scroll asks the engine to move the view one step.
func (e *Engine) Scroll(dir window.Direction) { e.enqueue(event{kind: eventScroll, dir: dir}) }

// Select switches the displayed ticker.
func (e *Engine) Select(index int) { e.enqueue(event{kind: eventSelect, index: index}) }

// Resize changes the number of visible points.
func (e *Engine) Resize(width int) { e.enqueue(event{kind: eventResize, width: width}) }

func (e *Engine) enqueue(ev event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("Dropping UI event, engine busy")
	}
}
