package series

import (
	"errors"
	"fmt"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

// Scheme selects how synchronization progress is tracked.
type Scheme int

const (
	SchemeTimestamp Scheme = iota
	SchemeIndex
)

func (s Scheme) String() string {
	switch s {
	case SchemeTimestamp:
		return "timestamp"
	case SchemeIndex:
		return "index"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseScheme maps a config value to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "timestamp":
		return SchemeTimestamp, nil
	case "index":
		return SchemeIndex, nil
	}
	return 0, fmt.Errorf("unknown cursor scheme %q", s)
}

// ErrSchemeInterval means the timestamp scheme cannot follow a feed that
// stamps more than one tick with the same second.
var ErrSchemeInterval = errors.New("timestamp cursor needs a tick interval of at least one second")

// CheckInterval reports whether scheme can track a feed ticking every
// tickIntervalSec seconds.
func CheckInterval(scheme Scheme, tickIntervalSec float64) error {
	if scheme == SchemeTimestamp && tickIntervalSec < 1 {
		return fmt.Errorf("%w: got %vs, use the index cursor", ErrSchemeInterval, tickIntervalSec)
	}
	return nil
}

// Cursor is the synchronization watermark. The two implementations are
// TimestampCursor and IndexCursor; Advance never mutates the receiver.
type Cursor interface {
	Scheme() Scheme
	// Request is the resumption token sent with every poll.
	Request() models.QuotesRequest
	// Accepts reports whether b is newer than the watermark.
	Accepts(b models.QuoteBatch) bool
	// Advance returns the cursor moved to b's watermark.
	Advance(b models.QuoteBatch) Cursor
	String() string

	sealed()
}

// NewCursor builds the initial cursor for scheme. origin is the Unix second
// from which history is requested before anything was received.
func NewCursor(scheme Scheme, origin int64) Cursor {
	if scheme == SchemeIndex {
		return NewIndexCursor(origin)
	}
	return NewTimestampCursor(origin)
}

// TimestampCursor accepts a batch only when its end timestamp is strictly greater.
type TimestampCursor struct {
	sec int64
}

func NewTimestampCursor(sec int64) TimestampCursor { return TimestampCursor{sec: sec} }

func (c TimestampCursor) Scheme() Scheme                { return SchemeTimestamp }
func (c TimestampCursor) Value() int64                  { return c.sec }
func (c TimestampCursor) Request() models.QuotesRequest { return models.SinceTimestamp(c.sec) }
func (c TimestampCursor) String() string                { return fmt.Sprintf("ts:%d", c.sec) }
func (TimestampCursor) sealed()                         {}

func (c TimestampCursor) Accepts(b models.QuoteBatch) bool {
	if b.SinceTimestampSec != nil && *b.SinceTimestampSec != c.sec {
		return false
	}
	return b.EndTimestampSec > c.sec
}

func (c TimestampCursor) Advance(b models.QuoteBatch) Cursor {
	return TimestampCursor{sec: b.EndTimestampSec}
}

// IndexCursor tracks the next index to request. Until the first batch is
// accepted it is unprimed and requests history by timestamp origin.
type IndexCursor struct {
	next   int64
	primed bool
	origin int64
}

func NewIndexCursor(origin int64) IndexCursor { return IndexCursor{origin: origin} }

func (c IndexCursor) Scheme() Scheme { return SchemeIndex }
func (c IndexCursor) Primed() bool   { return c.primed }
func (c IndexCursor) Value() int64   { return c.next }
func (IndexCursor) sealed()          {}

func (c IndexCursor) Request() models.QuotesRequest {
	if !c.primed {
		return models.SinceTimestamp(c.origin)
	}
	return models.SinceIndex(c.next)
}

func (c IndexCursor) String() string {
	if !c.primed {
		return fmt.Sprintf("idx:unprimed(ts:%d)", c.origin)
	}
	return fmt.Sprintf("idx:%d", c.next)
}

func (c IndexCursor) Accepts(b models.QuoteBatch) bool {
	if !c.primed {
		return true
	}
	if b.SinceIndex != nil && *b.SinceIndex != c.next {
		return false
	}
	if b.SinceIndex == nil && b.SinceTimestampSec != nil {
		// answer to a timestamp request sent before priming
		return false
	}
	return b.NextIndex != c.next
}

func (c IndexCursor) Advance(b models.QuoteBatch) Cursor {
	return IndexCursor{next: b.NextIndex, primed: true, origin: c.origin}
}
