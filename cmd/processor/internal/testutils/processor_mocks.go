package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed/redisfeed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// TickStream replays queued ticks in order. Once drained it reports
// DeadlineExceeded, which stops the processor's read loop.
type TickStream struct {
	mu   sync.Mutex
	msgs []kafka.Message
	next int
}

// NewTickStream queues ticks keyed by their code, the way the generator
// writes them.
func NewTickStream(ticks ...models.PriceMessage) *TickStream {
	s := &TickStream{}
	for _, t := range ticks {
		val, _ := json.Marshal(t)
		s.Raw(t.Code, val)
	}
	return s
}

// Raw queues a message as is, for payloads a real tick cannot produce.
func (s *TickStream) Raw(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, kafka.Message{Key: []byte(key), Value: value})
}

func (s *TickStream) ReadMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.msgs) {
		return kafka.Message{}, context.DeadlineExceeded
	}
	msg := s.msgs[s.next]
	s.next++
	return msg, nil
}

var errExec = errors.New("quote cache: exec failed")

type storedQuote struct {
	payload []byte
	ttl     time.Duration
}

// QuoteCacheSpy records what the processor writes, addressed by instrument
// code. Writes only land when the pipeline executes.
type QuoteCacheSpy struct {
	mu        sync.Mutex
	snapshots map[string]storedQuote
	published map[string][][]byte
	execs     int
	failNext  int
}

func NewQuoteCacheSpy() *QuoteCacheSpy {
	return &QuoteCacheSpy{
		snapshots: make(map[string]storedQuote),
		published: make(map[string][][]byte),
	}
}

func (s *QuoteCacheSpy) Pipeline() redis.Pipeliner {
	return &spyPipeline{spy: s}
}

// FailNext makes the next n pipeline executions fail without applying
// anything.
func (s *QuoteCacheSpy) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Execs counts successful pipeline executions.
func (s *QuoteCacheSpy) Execs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// Snapshot decodes what is stored under the code's snapshot key.
func (s *QuoteCacheSpy) Snapshot(code string) (models.PriceMessage, time.Duration, bool) {
	s.mu.Lock()
	q, ok := s.snapshots[redisfeed.SnapshotKey(code)]
	s.mu.Unlock()
	if !ok {
		return models.PriceMessage{}, 0, false
	}

	var msg models.PriceMessage
	if err := json.Unmarshal(q.payload, &msg); err != nil {
		return models.PriceMessage{}, 0, false
	}
	return msg, q.ttl, true
}

// Published returns the payloads sent on the code's channel, oldest first.
func (s *QuoteCacheSpy) Published(code string) []models.PriceMessage {
	s.mu.Lock()
	raw := append([][]byte(nil), s.published[redisfeed.Channel(code)]...)
	s.mu.Unlock()

	out := make([]models.PriceMessage, 0, len(raw))
	for _, p := range raw {
		var msg models.PriceMessage
		if err := json.Unmarshal(p, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// spyPipeline queues Set and Publish like a real pipeline and hands them to
// the spy on Exec. Other Pipeliner methods are not used by the processor.
type spyPipeline struct {
	redis.Pipeliner

	spy    *QuoteCacheSpy
	queued []func()
}

func (p *spyPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	payload := asBytes(value)
	p.queued = append(p.queued, func() {
		p.spy.snapshots[key] = storedQuote{payload: payload, ttl: expiration}
	})
	return redis.NewStatusCmd(ctx)
}

func (p *spyPipeline) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	payload := asBytes(message)
	p.queued = append(p.queued, func() {
		p.spy.published[channel] = append(p.spy.published[channel], payload)
	})
	return redis.NewIntCmd(ctx)
}

func (p *spyPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	p.spy.mu.Lock()
	defer p.spy.mu.Unlock()

	queued := p.queued
	p.queued = nil
	if p.spy.failNext > 0 {
		p.spy.failNext--
		return nil, errExec
	}
	for _, apply := range queued {
		apply()
	}
	p.spy.execs++
	return nil, nil
}

func asBytes(v interface{}) []byte {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...)
	case string:
		return []byte(b)
	default:
		out, _ := json.Marshal(v)
		return out
	}
}
