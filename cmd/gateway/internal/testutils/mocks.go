package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/protocol"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded JSON messages
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

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	// If it's a response, store it
	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

// Replies returns the ack and error messages in arrival order. Row traffic
// from the board pump is asynchronous and left out.
func (m *MockClient) Replies() []protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []protocol.WSResponse
	for _, msg := range m.Messages {
		if msg.Type == protocol.TypeAck || msg.Type == protocol.TypeError {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockClient) LastReply() protocol.WSResponse {
	replies := m.Replies()
	if len(replies) == 0 {
		return protocol.WSResponse{}
	}
	return replies[len(replies)-1]
}

// WaitFor polls until at least n messages of the given type arrived.
func (m *MockClient) WaitFor(msgType string, n int, timeout time.Duration) []protocol.WSResponse {
	deadline := time.Now().Add(timeout)
	for {
		m.Mu.Lock()
		var out []protocol.WSResponse
		for _, msg := range m.Messages {
			if msg.Type == msgType {
				out = append(out, msg)
			}
		}
		m.Mu.Unlock()

		if len(out) >= n || time.Now().After(deadline) {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MockSource is a feed.Source whose quotes are pushed by the test through the
// real subscription guard. Err fails every Start; Reject fails only the Starts
// that include that code.
type MockSource struct {
	Mu     sync.Mutex
	Starts [][]string
	Err    error
	Reject string
	subs   []*feed.Subscription
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (feed.Handle, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, c := range codes {
		if m.Reject != "" && c == m.Reject {
			return nil, fmt.Errorf("mock source: rejected %s", c)
		}
	}

	sub, subCtx := feed.NewSubscription(ctx, onMessage)
	sub.Go(subCtx, func(ctx context.Context) { <-ctx.Done() })

	m.Starts = append(m.Starts, append([]string(nil), codes...))
	m.subs = append(m.subs, sub)
	return sub, nil
}

// Active counts subscriptions that have not been closed.
func (m *MockSource) Active() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if !s.Closed() {
			n++
		}
	}
	return n
}

func (m *MockSource) StartCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Starts)
}

func (m *MockSource) LastCodes() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Starts) == 0 {
		return nil
	}
	return m.Starts[len(m.Starts)-1]
}

// Push delivers msg to every live subscription and reports how many took it.
func (m *MockSource) Push(msg models.PriceMessage) int {
	m.Mu.Lock()
	subs := append([]*feed.Subscription(nil), m.subs...)
	m.Mu.Unlock()

	n := 0
	for _, s := range subs {
		if s.Deliver(msg) {
			n++
		}
	}
	return n
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
