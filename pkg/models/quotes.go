package models

// ChartConfig is served once at startup and never changes for the session.
type ChartConfig struct {
	Tickers         []string `json:"tickers"`
	TickIntervalSec float64  `json:"tick_interval_sec"`
}

// QuoteBatch carries one chunk of points per ticker plus the updated watermark.
// SinceIndex / SinceTimestampSec echo the resumption token the batch was computed from.
type QuoteBatch struct {
	Quotes            [][]float64 `json:"quotes"`
	NextIndex         int64       `json:"next_index"`
	EndTimestampSec   int64       `json:"end_timestamp_sec"`
	SinceIndex        *int64      `json:"since_index,omitempty"`
	SinceTimestampSec *int64      `json:"since_timestamp_sec,omitempty"`
}

// Points returns the chunk length, assuming every chunk has the same size.
func (b QuoteBatch) Points() int {
	if len(b.Quotes) == 0 {
		return 0
	}
	return len(b.Quotes[0])
}

// QuotesRequest is the resumption token sent with every poll. Exactly one field is set.
type QuotesRequest struct {
	FromIndex        *int64 `json:"from_index,omitempty"`
	FromTimestampSec *int64 `json:"from_timestamp_sec,omitempty"`
}

// SinceIndex builds an index based request.
func SinceIndex(i int64) QuotesRequest { return QuotesRequest{FromIndex: &i} }

// SinceTimestamp builds a timestamp based request.
func SinceTimestamp(sec int64) QuotesRequest { return QuotesRequest{FromTimestampSec: &sec} }

// Tick is one generated point for every ticker of a feed.
type Tick struct {
	Feed         string    `json:"feed"`
	Seq          int64     `json:"seq"` // tick number, monotonic across generator restarts
	TimestampSec int64     `json:"timestamp_sec"`
	Quotes       []float64 `json:"quotes"`
}

// FeedMeta describes the quote history stored for a feed.
type FeedMeta struct {
	NextIndex       int64 `json:"next_index"`
	EndTimestampSec int64 `json:"end_timestamp_sec"`
	LastSeq         int64 `json:"last_seq"`
	Stored          int64 `json:"stored"`
	Tickers         int   `json:"tickers"`
}
