package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const (
	channelPrefix = "quotes."
	maxTxRetries  = 5
)

// Compile-time check to ensure RedisStore implements QuoteStore
var _ QuoteStore = (*RedisStore)(nil)

type RedisStore struct {
	client          *redis.Client
	pubsub          *redis.PubSub
	mu              sync.Mutex // Protects pubsub subscription changes
	feed            string
	tickers         int
	tickIntervalSec float64
}

func NewRedisStore(client *redis.Client, feed string, tickers int, tickIntervalSec float64) *RedisStore {
	ps := client.Subscribe(context.Background())
	return &RedisStore{
		client:          client,
		pubsub:          ps,
		feed:            feed,
		tickers:         tickers,
		tickIntervalSec: tickIntervalSec,
	}
}

func (r *RedisStore) Meta(ctx context.Context) (models.FeedMeta, error) {
	return readMeta(ctx, r.client, r.feed)
}

func readMeta(ctx context.Context, c redis.Cmdable, feed string) (models.FeedMeta, error) {
	raw, err := c.Get(ctx, models.MetaKey(feed)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.FeedMeta{}, nil
	}
	if err != nil {
		return models.FeedMeta{}, err
	}
	var meta models.FeedMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.FeedMeta{}, fmt.Errorf("decode feed meta: %w", err)
	}
	return meta, nil
}

// Quotes returns every stored tick after the request's token. The meta key is
// WATCHed so the ticker lists are read at the same version as the meta.
func (r *RedisStore) Quotes(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error) {
	if err := ValidateRequest(req); err != nil {
		return models.QuoteBatch{}, err
	}

	var batch models.QuoteBatch
	read := func(tx *redis.Tx) error {
		meta, err := readMeta(ctx, tx, r.feed)
		if err != nil {
			return err
		}
		from, err := Span(req, meta, r.tickIntervalSec)
		if err != nil {
			return err
		}

		batch = models.QuoteBatch{
			Quotes:            make([][]float64, r.tickers),
			NextIndex:         meta.NextIndex,
			EndTimestampSec:   meta.EndTimestampSec,
			SinceIndex:        req.FromIndex,
			SinceTimestampSec: req.FromTimestampSec,
		}
		n := meta.NextIndex - from
		if n == 0 {
			for i := range batch.Quotes {
				batch.Quotes[i] = []float64{}
			}
			return nil
		}

		cmds := make([]*redis.StringSliceCmd, r.tickers)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := range cmds {
				cmds[i] = pipe.LRange(ctx, models.QuotesKey(r.feed, i), -n, -1)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for i, cmd := range cmds {
			chunk, err := parseQuotes(cmd.Val())
			if err != nil {
				return err
			}
			if int64(len(chunk)) != n {
				return fmt.Errorf("%w: ticker %d has %d quotes, want %d", ErrInconsistent, i, len(chunk), n)
			}
			batch.Quotes[i] = chunk
		}
		return nil
	}

	metaKey := models.MetaKey(r.feed)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, read, metaKey)
		if errors.Is(err, redis.TxFailedErr) {
			// a tick landed between the meta read and EXEC
			continue
		}
		if err != nil {
			return models.QuoteBatch{}, err
		}
		return batch, nil
	}
	return models.QuoteBatch{}, fmt.Errorf("read quotes: %w", redis.TxFailedErr)
}

func parseQuotes(vals []string) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInconsistent, err)
		}
		out[i] = f
	}
	return out, nil
}

// SubscribeToFeed tells Redis we want to listen to this feed's channel
func (r *RedisStore) SubscribeToFeed(ctx context.Context, feed string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Subscribe(ctx, models.FeedChannel(feed))
}

// UnsubscribeFromFeed tells Redis to stop sending messages for this feed
func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, feed string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Unsubscribe(ctx, models.FeedChannel(feed))
}

// RunPubSub is a blocking loop that decodes feed notifications and triggers the callback
func (r *RedisStore) RunPubSub(ctx context.Context, onMessage func(feed string, meta models.FeedMeta)) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			feed, found := strings.CutPrefix(msg.Channel, channelPrefix)
			if !found {
				continue
			}
			var meta models.FeedMeta
			if err := json.Unmarshal([]byte(msg.Payload), &meta); err != nil {
				continue
			}
			onMessage(feed, meta)
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}
