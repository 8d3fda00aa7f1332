package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/pkg/config"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const workerBuffer = 100

type Processor struct {
	cfg        *config.Config
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
	maxStored  int64
	tickers    int
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	numWorkers := cfg.Processor.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Processor{
		cfg:        cfg,
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: numWorkers,
		maxStored:  cfg.Quotes.MaxStoredTicks,
		tickers:    len(cfg.Quotes.TickerNames()),
	}
}

func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, workerBuffer)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same feed always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			// a dropped tick would leave a permanent gap in the history, so block instead
			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // no cancellation mid-transaction

	// Local feed state (only valid because of deterministic sharding)
	feeds := make(map[string]*models.FeedMeta)

	for payload := range msgs {
		var tick models.Tick
		if err := json.Unmarshal(payload, &tick); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		meta, ok := feeds[tick.Feed]
		if !ok {
			loaded, err := p.loadMeta(ctx, tick.Feed)
			if err != nil {
				p.logger.Error("Failed to load feed meta", zap.String("feed", tick.Feed), zap.Error(err))
				continue
			}
			meta = loaded
			feeds[tick.Feed] = meta
		}

		if meta.NextIndex > 0 && tick.Seq <= meta.LastSeq {
			p.logger.Debug("Skipping duplicate tick", zap.String("feed", tick.Feed),
				zap.Int64("seq", tick.Seq), zap.Int64("last_seq", meta.LastSeq))
			continue
		}
		if want := p.expectedTickers(meta); want > 0 && len(tick.Quotes) != want {
			p.logger.Error("Rejecting tick with wrong ticker count", zap.String("feed", tick.Feed),
				zap.Int("got", len(tick.Quotes)), zap.Int("want", want))
			continue
		}

		next, err := p.apply(ctx, tick, *meta)
		if err != nil {
			p.logger.Error("Redis Transaction Error", zap.Error(err), zap.String("feed", tick.Feed))
			continue
		}
		*meta = next
		p.logger.Debug("Processed", zap.String("feed", tick.Feed), zap.Int("worker_id", id),
			zap.Int64("seq", tick.Seq), zap.Int64("next_index", next.NextIndex))
	}
}

func (p *Processor) expectedTickers(meta *models.FeedMeta) int {
	if meta.Tickers > 0 {
		return meta.Tickers
	}
	return p.tickers
}

// loadMeta returns the stored meta of a feed, or a zero meta for a new feed.
func (p *Processor) loadMeta(ctx context.Context, feed string) (*models.FeedMeta, error) {
	raw, err := p.rdb.Get(ctx, models.MetaKey(feed)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &models.FeedMeta{}, nil
	}
	if err != nil {
		return nil, err
	}
	var meta models.FeedMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &meta, nil
}

// apply appends one tick to every ticker list, trims to retention and
// publishes the new meta, all in one MULTI/EXEC.
func (p *Processor) apply(ctx context.Context, tick models.Tick, meta models.FeedMeta) (models.FeedMeta, error) {
	meta.NextIndex++
	meta.EndTimestampSec = tick.TimestampSec
	meta.LastSeq = tick.Seq
	meta.Tickers = len(tick.Quotes)
	meta.Stored++
	if p.maxStored > 0 && meta.Stored > p.maxStored {
		meta.Stored = p.maxStored
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return models.FeedMeta{}, err
	}

	pipe := p.rdb.TxPipeline()
	for i, q := range tick.Quotes {
		key := models.QuotesKey(tick.Feed, i)
		pipe.RPush(ctx, key, q)
		if p.maxStored > 0 {
			pipe.LTrim(ctx, key, -p.maxStored, -1)
		}
	}
	pipe.Set(ctx, models.MetaKey(tick.Feed), encoded, 0)
	pipe.Publish(ctx, models.FeedChannel(tick.Feed), encoded)

	if _, err := pipe.Exec(ctx); err != nil {
		return models.FeedMeta{}, err
	}
	return meta, nil
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}
