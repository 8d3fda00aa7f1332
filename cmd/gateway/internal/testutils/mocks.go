package testutils

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-chart/pkg/models"
	"github.com/shubham-shewale/quote-chart/pkg/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores responses passed to SendJSON
	RawBytes []string              // Stores raw bytes
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsg() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) LastMsgType() string { return m.LastMsg().Type }

// Pushes decodes the raw pushed messages.
func (m *MockClient) Pushes(t *testing.T) []protocol.QuotesSent {
	t.Helper()
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]protocol.QuotesSent, len(m.RawBytes))
	for i, raw := range m.RawBytes {
		if err := json.Unmarshal([]byte(raw), &out[i]); err != nil {
			t.Fatalf("push %d is not JSON: %v", i, err)
		}
	}
	return out
}

// MockQuoteStore simulates Redis: it holds one series per ticker and
// resolves requests with the same rules as the real store.
type MockQuoteStore struct {
	Mu                 sync.Mutex
	SubscribedChannels map[string]int // feed -> count
	Series             [][]float64
	FeedMeta           models.FeedMeta
	TickIntervalSec    float64
	QuoteCalls         int
	Err                error
}

func NewMockStore(tickers int) *MockQuoteStore {
	return &MockQuoteStore{
		SubscribedChannels: make(map[string]int),
		Series:             make([][]float64, tickers),
		TickIntervalSec:    1,
	}
}

// Append adds one tick stamped ts. Seq equals ts, which holds for the
// default one second interval.
func (m *MockQuoteStore) Append(ts int64, quotes ...float64) models.FeedMeta {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i, q := range quotes {
		m.Series[i] = append(m.Series[i], q)
	}
	m.FeedMeta.NextIndex++
	m.FeedMeta.Stored++
	m.FeedMeta.EndTimestampSec = ts
	m.FeedMeta.LastSeq = ts
	m.FeedMeta.Tickers = len(quotes)
	return m.FeedMeta
}

func (m *MockQuoteStore) Meta(ctx context.Context) (models.FeedMeta, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.FeedMeta, m.Err
}

func (m *MockQuoteStore) Quotes(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.QuoteCalls++
	if m.Err != nil {
		return models.QuoteBatch{}, m.Err
	}
	from, err := repository.Span(req, m.FeedMeta, m.TickIntervalSec)
	if err != nil {
		return models.QuoteBatch{}, err
	}
	b := models.QuoteBatch{
		Quotes:            make([][]float64, len(m.Series)),
		NextIndex:         m.FeedMeta.NextIndex,
		EndTimestampSec:   m.FeedMeta.EndTimestampSec,
		SinceIndex:        req.FromIndex,
		SinceTimestampSec: req.FromTimestampSec,
	}
	oldest := m.FeedMeta.NextIndex - int64(len(m.Series[0]))
	for i, s := range m.Series {
		b.Quotes[i] = append([]float64{}, s[from-oldest:]...)
	}
	return b, nil
}

func (m *MockQuoteStore) SubscribeToFeed(ctx context.Context, feed string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[feed]++
	return nil
}

func (m *MockQuoteStore) UnsubscribeFromFeed(ctx context.Context, feed string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubscribedChannels[feed]--
	if m.SubscribedChannels[feed] <= 0 {
		delete(m.SubscribedChannels, feed)
	}
	return nil
}

func (m *MockQuoteStore) RunPubSub(ctx context.Context, onMessage func(feed string, meta models.FeedMeta)) {
	// No-op for unit tests; tests call Hub.Broadcast directly
}

func (m *MockQuoteStore) Close() error { return nil }

func (m *MockQuoteStore) Subscribed(feed string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.SubscribedChannels[feed]
}

func (m *MockQuoteStore) Calls() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.QuoteCalls
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
