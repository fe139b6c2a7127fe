package generator

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrTopicNotReady means the topic was requested but reported no partitions
// within the wait budget.
var ErrTopicNotReady = errors.New("kafka topic not ready")

type TopicCreator struct {
	logger *zap.Logger
	dialer BrokerDialer
	clock  Clock
}

func NewTopicCreator(logger *zap.Logger, dialer BrokerDialer, clock Clock) *TopicCreator {
	return &TopicCreator{
		logger: logger,
		dialer: dialer,
		clock:  clock,
	}
}

// Create asks the controller for the topic and waits until it has
// partitions. An existing topic is not an error.
func (tc *TopicCreator) Create(ctx context.Context, brokers []string, topicName string, partitions int) error {
	var conn BrokerConn
	err := errors.New("no brokers configured")

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		tc.logger.Debug("Broker unreachable", zap.String("broker", addr), zap.Error(err))
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	// one partition per code bucket keeps per-code ordering
	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	} else {
		tc.logger.Info("Topic creation request sent", zap.String("topic", topicName), zap.Int("partitions", partitions))
	}

	return tc.waitForTopic(conn, topicName)
}

func (tc *TopicCreator) waitForTopic(conn BrokerConn, topicName string) error {
	tc.logger.Info("Waiting for topic initialization...", zap.String("topic", topicName))
	for i := 0; i < 5; i++ {
		tc.clock.Sleep(200 * time.Millisecond)
		parts, err := conn.ReadPartitions(topicName)
		if err == nil && len(parts) > 0 {
			tc.logger.Info("Topic is ready!", zap.Int("partitions", len(parts)))
			return nil
		}
	}
	return ErrTopicNotReady
}
