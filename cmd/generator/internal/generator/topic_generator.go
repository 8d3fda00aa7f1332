package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicReadyAttempts = 5
	topicReadyBackoff  = 200 * time.Millisecond
)

// TopicCreator makes sure the tick topic exists before the generator produces to it.
type TopicCreator struct {
	logger *zap.Logger
	dialer KafkaDialer
	clock  Clock
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger: logger,
		dialer: dialer,
		clock:  clock,
	}
}

// Ensure creates the topic through the cluster controller and waits until
// its partitions are readable. An already existing topic is not an error.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, topic string, partitions int) error {
	if partitions <= 0 {
		partitions = 1
	}

	var (
		conn KafkaConn
		err  error
	)
	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		tc.logger.Debug("Broker unreachable", zap.String("addr", addr), zap.Error(err))
	}
	if conn == nil {
		if err == nil {
			err = errors.New("no brokers configured")
		}
		return fmt.Errorf("dial brokers: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	tc.logger.Info("Topic ready for creation", zap.String("topic", topic), zap.Int("partitions", partitions))

	return tc.waitForTopic(conn, topic)
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topic string) error {
	for i := 0; i < topicReadyAttempts; i++ {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
		tc.clock.Sleep(topicReadyBackoff)
	}
	return fmt.Errorf("topic %s not ready after %d attempts", topic, topicReadyAttempts)
}
