package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const feed = "quotes"

func newStore(t *testing.T) (*repository.RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := repository.NewRedisStore(rdb, feed, 2, 1)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func setMeta(t *testing.T, mr *miniredis.Miniredis, meta models.FeedMeta) {
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, mr.Set(models.MetaKey(feed), string(raw)))
}

// seed stores indices 7..9 (three survived trimming), newest stamped 509.
func seed(t *testing.T, mr *miniredis.Miniredis) {
	mr.RPush(models.QuotesKey(feed, 0), "7", "8", "9")
	mr.RPush(models.QuotesKey(feed, 1), "-7", "-8", "-9.5")
	setMeta(t, mr, models.FeedMeta{NextIndex: 10, EndTimestampSec: 509, LastSeq: 509, Stored: 3, Tickers: 2})
}

func TestRedisStore_Meta(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FeedMeta{}, meta, "missing meta reads as an empty feed")

	seed(t, mr)
	meta, err = store.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), meta.NextIndex)
	assert.Equal(t, int64(3), meta.Stored)
}

func TestRedisStore_Quotes(t *testing.T) {
	store, mr := newStore(t)
	seed(t, mr)
	ctx := context.Background()

	b, err := store.Quotes(ctx, models.SinceIndex(8))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{8, 9}, {-8, -9.5}}, b.Quotes)
	assert.Equal(t, int64(10), b.NextIndex)
	assert.Equal(t, int64(509), b.EndTimestampSec)
	require.NotNil(t, b.SinceIndex)
	assert.Equal(t, int64(8), *b.SinceIndex)
	assert.Nil(t, b.SinceTimestampSec)

	// below retention: everything stored
	b, err = store.Quotes(ctx, models.SinceIndex(0))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Points())

	// caught up
	b, err = store.Quotes(ctx, models.SinceIndex(10))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{}, {}}, b.Quotes)

	// one tick interval back
	b, err = store.Quotes(ctx, models.SinceTimestamp(508))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{9}, {-9.5}}, b.Quotes)
	require.NotNil(t, b.SinceTimestampSec)
	assert.Equal(t, int64(508), *b.SinceTimestampSec)

	_, err = store.Quotes(ctx, models.SinceIndex(11))
	assert.ErrorIs(t, err, repository.ErrCursorAhead)

	_, err = store.Quotes(ctx, models.QuotesRequest{})
	assert.ErrorIs(t, err, repository.ErrInvalidRequest)
}

func TestRedisStore_QuotesTimestampNonWholeInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	store := repository.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), feed, 2, 1.5)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	// seq 0..3 at 1.5s are stamped 0, 1, 3, 4
	mr.RPush(models.QuotesKey(feed, 0), "0", "1", "2", "3")
	mr.RPush(models.QuotesKey(feed, 1), "0", "-1", "-2", "-3")
	setMeta(t, mr, models.FeedMeta{NextIndex: 4, EndTimestampSec: 4, LastSeq: 3, Stored: 4, Tickers: 2})

	b, err := store.Quotes(ctx, models.SinceTimestamp(3))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3}, {-3}}, b.Quotes, "seq 3 is stamped after 3")

	b, err = store.Quotes(ctx, models.SinceTimestamp(1))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 3}, {-2, -3}}, b.Quotes)

	b, err = store.Quotes(ctx, models.SinceTimestamp(4))
	require.NoError(t, err)
	assert.Equal(t, 0, b.Points())
}

func TestRedisStore_QuotesInconsistent(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	mr.RPush(models.QuotesKey(feed, 0), "1", "2")
	mr.RPush(models.QuotesKey(feed, 1), "1")
	setMeta(t, mr, models.FeedMeta{NextIndex: 2, EndTimestampSec: 2, Stored: 2, Tickers: 2})

	_, err := store.Quotes(ctx, models.SinceIndex(0))
	assert.ErrorIs(t, err, repository.ErrInconsistent)

	mr.RPush(models.QuotesKey(feed, 1), "not-a-number")
	_, err = store.Quotes(ctx, models.SinceIndex(0))
	assert.ErrorIs(t, err, repository.ErrInconsistent)
}

func TestRedisStore_PubSub(t *testing.T) {
	store, mr := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan models.FeedMeta, 8)
	go store.RunPubSub(ctx, func(f string, meta models.FeedMeta) {
		if f != feed {
			return
		}
		select {
		case got <- meta:
		default:
		}
	})
	require.NoError(t, store.SubscribeToFeed(ctx, feed))

	want := models.FeedMeta{NextIndex: 42, EndTimestampSec: 77, Stored: 1, Tickers: 2}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mr.Publish(models.FeedChannel(feed), string(raw))
		select {
		case meta := <-got:
			return meta == want
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.UnsubscribeFromFeed(ctx, feed))
}
