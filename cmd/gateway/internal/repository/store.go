package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

var (
	// ErrCursorAhead is returned for a from_index beyond the newest stored tick.
	ErrCursorAhead = errors.New("from_index is ahead of the stored quotes")
	// ErrInvalidRequest is returned unless exactly one resumption field is set.
	ErrInvalidRequest = errors.New("exactly one of from_index and from_timestamp_sec must be set")
	// ErrInconsistent means the ticker lists disagree with the feed meta.
	ErrInconsistent = errors.New("stored quotes are inconsistent")
)

// QuoteStore reads the quote history written by the processor and relays
// its change notifications.
type QuoteStore interface {
	Meta(ctx context.Context) (models.FeedMeta, error)
	Quotes(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error)
	SubscribeToFeed(ctx context.Context, feed string) error
	UnsubscribeFromFeed(ctx context.Context, feed string) error
	RunPubSub(ctx context.Context, onMessage func(feed string, meta models.FeedMeta))
	Close() error
}

// ValidateRequest checks that exactly one resumption field is set.
func ValidateRequest(req models.QuotesRequest) error {
	if (req.FromIndex == nil) == (req.FromTimestampSec == nil) {
		return ErrInvalidRequest
	}
	return nil
}

// Span resolves a request against the feed meta and returns the index of the
// first tick to send. Index requests below retention are clamped to the
// oldest stored tick. Timestamp requests get every tick stamped after
// from_timestamp_sec, counted by seq from the newest tick so stamps truncated
// to whole seconds are never miscounted; the count is capped to what is stored.
func Span(req models.QuotesRequest, meta models.FeedMeta, tickIntervalSec float64) (int64, error) {
	if err := ValidateRequest(req); err != nil {
		return 0, err
	}
	oldest := meta.NextIndex - meta.Stored

	if req.FromIndex != nil {
		from := *req.FromIndex
		if from > meta.NextIndex {
			return 0, ErrCursorAhead
		}
		if from < oldest {
			from = oldest
		}
		return from, nil
	}

	interval := time.Duration(tickIntervalSec * float64(time.Second))
	if meta.Stored == 0 || interval <= 0 {
		return meta.NextIndex, nil
	}
	n := meta.LastSeq - models.LastSeqAtOrBefore(*req.FromTimestampSec, interval)
	n = min(max(n, 0), meta.Stored)
	return meta.NextIndex - n, nil
}
