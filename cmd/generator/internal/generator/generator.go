package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

// QuoteGenerator random-walks one quote per ticker on every tick and
// publishes each tick to Kafka, keyed by feed so a single partition sees
// the feed in order.
type QuoteGenerator struct {
	logger *zap.Logger
	writer KafkaWriter
	cfg    Settings
	rand   Rand
	clock  Clock

	quotes  []float64 // last emitted tick; nil before the first one
	nextSeq int64
}

func NewQuoteGenerator(logger *zap.Logger, writer KafkaWriter, cfg Settings, rnd Rand, clock Clock) *QuoteGenerator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = 1
	}
	return &QuoteGenerator{
		logger: logger,
		writer: writer,
		cfg:    cfg,
		rand:   rnd,
		clock:  clock,
	}
}

// SeqAt returns the number of the tick covering t.
func SeqAt(t time.Time, interval time.Duration) int64 {
	return t.UnixNano() / int64(interval)
}

// TimestampOf returns the unix second a tick is stamped with.
func TimestampOf(seq int64, interval time.Duration) int64 {
	return models.TickTimestamp(seq, interval)
}

func (g *QuoteGenerator) Run(ctx context.Context) {
	g.logger.Info("Generator Started",
		zap.String("feed", g.cfg.Feed),
		zap.Int("tickers", len(g.cfg.Tickers)),
		zap.Duration("interval", g.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, err := g.Step(ctx); err != nil {
				g.logger.Error("Kafka Write Error", zap.Error(err))
			}
			g.clock.Sleep(g.untilNextTick())
		}
	}
}

// Step emits every tick due at the current time, catching up after a stall.
// It returns how many ticks were written.
func (g *QuoteGenerator) Step(ctx context.Context) (int, error) {
	due := SeqAt(g.clock.Now(), g.cfg.Interval)
	if g.quotes == nil {
		g.nextSeq = due
	}
	if due < g.nextSeq {
		return 0, nil
	}
	if missed := due - g.nextSeq + 1; missed > g.cfg.MaxCatchUp {
		g.logger.Warn("Skipping ticks after stall", zap.Int64("missed", missed-g.cfg.MaxCatchUp))
		g.nextSeq = due - g.cfg.MaxCatchUp + 1
	}

	msgs := make([]kafka.Message, 0, due-g.nextSeq+1)
	for ; g.nextSeq <= due; g.nextSeq++ {
		tick := models.Tick{
			Feed:         g.cfg.Feed,
			Seq:          g.nextSeq,
			TimestampSec: TimestampOf(g.nextSeq, g.cfg.Interval),
			Quotes:       g.advance(),
		}
		payload, err := json.Marshal(tick)
		if err != nil {
			return 0, fmt.Errorf("marshal tick %d: %w", tick.Seq, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(g.cfg.Feed), Value: payload})
	}

	if err := g.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	g.logger.Debug("Sent ticks", zap.Int("count", len(msgs)), zap.Int64("next_seq", g.nextSeq))
	return len(msgs), nil
}

// advance moves every ticker one step and returns a copy of the new quotes.
func (g *QuoteGenerator) advance() []float64 {
	if g.quotes == nil {
		g.quotes = make([]float64, len(g.cfg.Tickers))
		for i := range g.quotes {
			g.quotes[i] = float64(g.clamp(g.cfg.InitialQuote))
		}
	} else {
		for i, q := range g.quotes {
			move := 1
			if g.rand.Float64() < 0.5 {
				move = -1
			}
			g.quotes[i] = float64(g.clamp(int(q) + move))
		}
	}
	return append([]float64(nil), g.quotes...)
}

func (g *QuoteGenerator) clamp(q int) int {
	if q > g.cfg.MaxQuote {
		return g.cfg.MaxQuote
	}
	if q < g.cfg.MinQuote {
		return g.cfg.MinQuote
	}
	return q
}

func (g *QuoteGenerator) untilNextTick() time.Duration {
	next := time.Unix(0, g.nextSeq*int64(g.cfg.Interval))
	if d := next.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return g.cfg.Interval
}
