package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/quote-chart/cmd/generator/internal/generator"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

// Snapshot returns a copy of the written messages.
func (m *MockKafkaWriter) Snapshot() []kafka.Message {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]kafka.Message(nil), m.Messages...)
}

type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Sleep(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// MockRand cycles through Values.
type MockRand struct {
	Values []float64
	next   int
}

func (m *MockRand) Float64() float64 {
	if len(m.Values) == 0 {
		return 0
	}
	v := m.Values[m.next%len(m.Values)]
	m.next++
	return v
}

type MockKafkaConn struct {
	CreatedTopics []kafka.TopicConfig
	CreateErr     error
	NotReady      bool
	Closed        int
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { m.Closed++; return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.CreatedTopics = append(m.CreatedTopics, topics...)
	return m.CreateErr
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NotReady {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	Err     error
	Dialed  []string
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (generator.KafkaConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
