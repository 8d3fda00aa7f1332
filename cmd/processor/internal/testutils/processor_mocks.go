package testutils

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// DeadlineExceeded stops the processor's read loop cleanly
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockPipeline records the commands queued in each transaction.
type MockPipeline struct {
	redis.Pipeliner // Embed interface to satisfy the rest of the method set

	ExecCount    int
	RecordedCmds []string
	Mu           sync.Mutex
	FailExec     bool
}

func (m *MockPipeline) record(cmd string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RecordedCmds = append(m.RecordedCmds, cmd)
}

func (m *MockPipeline) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.record(fmt.Sprintf("RPUSH %s %v", key, values[0]))
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	m.record(fmt.Sprintf("LTRIM %s %d %d", key, start, stop))
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.record("SET " + key)
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeline) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.record("PUBLISH " + channel)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailExec {
		return nil, fmt.Errorf("exec failed")
	}
	m.ExecCount++
	return nil, nil
}

// Count returns how many recorded commands start with prefix.
func (m *MockPipeline) Count(prefix string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, c := range m.RecordedCmds {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type MockRedisClient struct {
	PipelineSpy *MockPipeline
	// Stored answers GET; missing keys return redis.Nil.
	Stored map[string]string
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{PipelineSpy: &MockPipeline{}, Stored: map[string]string{}}
}

func (m *MockRedisClient) TxPipeline() redis.Pipeliner {
	return m.PipelineSpy
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := m.Stored[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusCmd(ctx)
}

func (m *MockRedisClient) Close() error { return nil }
