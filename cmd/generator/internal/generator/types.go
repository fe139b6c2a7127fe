package generator

import (
	"context"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
)

// Clock paces the tick loop and stamps quotes.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Walk drives the random walk: Pick chooses which of n codes moves and Draw
// returns a value in [0, 1) that scales the step, 0.5 being no move.
type Walk interface {
	Pick(n int) int
	Draw() float64
}

// TickWriter takes ticks keyed by code. *kafka.Writer satisfies it.
type TickWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// BrokerConn is the part of *kafka.Conn the topic setup needs.
type BrokerConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

type BrokerDialer interface {
	DialContext(ctx context.Context, network, address string) (BrokerConn, error)
}

type WallClock struct{}

func (WallClock) Now() time.Time        { return time.Now() }
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

type randomWalk struct{ r *rand.Rand }

// NewRandomWalk seeds a walk; the same seed replays the same session.
func NewRandomWalk(seed int64) Walk {
	return randomWalk{r: rand.New(rand.NewSource(seed))}
}

func (w randomWalk) Pick(n int) int { return w.r.Intn(n) }
func (w randomWalk) Draw() float64  { return w.r.Float64() }

type kafkaDialer struct{ d *kafka.Dialer }

// NewBrokerDialer dials brokers with the given connect timeout.
func NewBrokerDialer(timeout time.Duration) BrokerDialer {
	return kafkaDialer{d: &kafka.Dialer{Timeout: timeout}}
}

func (k kafkaDialer) DialContext(ctx context.Context, network, address string) (BrokerConn, error) {
	conn, err := k.d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
