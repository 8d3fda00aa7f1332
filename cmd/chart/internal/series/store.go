package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

var (
	// ErrTickerMismatch means a batch does not carry one chunk per known ticker.
	ErrTickerMismatch = errors.New("batch ticker count does not match config")
	// ErrRaggedBatch means the chunks of one batch differ in length.
	ErrRaggedBatch = errors.New("batch chunks differ in length")
)

// Store owns one append-only sequence per ticker plus the sync cursor.
// It is not safe for concurrent use; the engine loop is its only owner.
type Store struct {
	tickers []string
	quotes  [][]float64
	cursor  Cursor
	endSec  int64
	hasEnd  bool
}

// NewStore creates an empty store for a fixed ticker list.
func NewStore(tickers []string, cursor Cursor) *Store {
	return &Store{
		tickers: tickers,
		quotes:  make([][]float64, len(tickers)),
		cursor:  cursor,
	}
}

// Merge applies b when the cursor reports it as newer and returns whether
// anything changed. Stale and duplicate batches are dropped without error.
func (s *Store) Merge(b models.QuoteBatch) (bool, error) {
	if len(b.Quotes) != len(s.tickers) {
		return false, fmt.Errorf("%w: got %d chunks, want %d", ErrTickerMismatch, len(b.Quotes), len(s.tickers))
	}
	n := b.Points()
	for i, chunk := range b.Quotes {
		if len(chunk) != n {
			return false, fmt.Errorf("%w: chunk %d has %d points, chunk 0 has %d", ErrRaggedBatch, i, len(chunk), n)
		}
	}

	if !s.cursor.Accepts(b) {
		return false, nil
	}

	for i, chunk := range b.Quotes {
		s.quotes[i] = append(s.quotes[i], chunk...)
	}
	s.cursor = s.cursor.Advance(b)
	s.endSec = b.EndTimestampSec
	s.hasEnd = true
	return true, nil
}

// Len is the common length of every ticker's sequence.
func (s *Store) Len() int {
	if len(s.quotes) == 0 {
		return 0
	}
	return len(s.quotes[0])
}

// Series returns ticker i's sequence. Callers must not modify it.
func (s *Store) Series(i int) []float64 { return s.quotes[i] }

func (s *Store) Tickers() []string { return s.tickers }
func (s *Store) Cursor() Cursor    { return s.cursor }

// EndTime is the right edge of the most recently accepted batch.
func (s *Store) EndTime() (time.Time, bool) {
	return time.Unix(s.endSec, 0), s.hasEnd
}
