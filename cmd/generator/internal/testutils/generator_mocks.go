package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/SunYerim/StockOfGalaxy/cmd/generator/internal/generator"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// TickRecorder keeps every tick the generator writes. With Fail set each
// write is refused.
type TickRecorder struct {
	mu   sync.Mutex
	msgs []kafka.Message
	Fail bool
}

func (r *TickRecorder) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return errors.New("broker unavailable")
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

// Keys returns the message keys in write order.
func (r *TickRecorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		keys[i] = string(m.Key)
	}
	return keys
}

// Ticks decodes the written payloads in write order.
func (r *TickRecorder) Ticks() ([]models.PriceMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PriceMessage, 0, len(r.msgs))
	for _, m := range r.msgs {
		var tick models.PriceMessage
		if err := json.Unmarshal(m.Value, &tick); err != nil {
			return nil, err
		}
		out = append(out, tick)
	}
	return out, nil
}

// ManualClock only moves when the generator sleeps.
type ManualClock struct {
	CurrentTime time.Time
}

func (c *ManualClock) Now() time.Time        { return c.CurrentTime }
func (c *ManualClock) Sleep(d time.Duration) { c.CurrentTime = c.CurrentTime.Add(d) }

// FixedWalk always moves the code at Index by the same Draw.
type FixedWalk struct {
	Index int
	Value float64
}

func (w *FixedWalk) Pick(n int) int { return w.Index }
func (w *FixedWalk) Draw() float64  { return w.Value }

// BrokerSpy answers as a broker that is its own controller and reports topics
// ready at once.
type BrokerSpy struct {
	CreatedTopics []string
}

func (b *BrokerSpy) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}

func (b *BrokerSpy) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		b.CreatedTopics = append(b.CreatedTopics, t.Topic)
	}
	return nil
}

func (b *BrokerSpy) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return []kafka.Partition{{ID: 0}}, nil
}

func (b *BrokerSpy) Close() error { return nil }

// SpyDialer hands out one BrokerSpy for every address.
type SpyDialer struct {
	Broker *BrokerSpy
}

func (d *SpyDialer) DialContext(ctx context.Context, network, address string) (generator.BrokerConn, error) {
	if d.Broker == nil {
		d.Broker = &BrokerSpy{}
	}
	return d.Broker, nil
}

// FailingDialer refuses every connection.
type FailingDialer struct {
	Calls int
}

func (f *FailingDialer) DialContext(ctx context.Context, network, address string) (generator.BrokerConn, error) {
	f.Calls++
	return nil, errors.New("connection refused")
}
