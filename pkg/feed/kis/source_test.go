package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// fakeKIS plays the upstream quote server. Each accepted connection reads
// one subscription per code and then runs script.
type fakeKIS struct {
	mu         sync.Mutex
	subscribed []string
	keys       []string
	conns      int
	script     func(n int, conn *websocket.Conn)
}

func (f *fakeKIS) handler(t *testing.T, codes int) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.conns++
		n := f.conns
		f.mu.Unlock()

		for i := 0; i < codes; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req subscribeRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("bad subscribe message: %s", msg)
				return
			}
			f.mu.Lock()
			f.subscribed = append(f.subscribed, req.Body.Input.TrKey)
			f.keys = append(f.keys, req.Header.ApprovalKey)
			f.mu.Unlock()
		}

		f.script(n, conn)

		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

func (f *fakeKIS) snapshot() (subscribed, keys []string, conns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...), append([]string(nil), f.keys...), f.conns
}

type collector struct {
	mu   sync.Mutex
	msgs []models.PriceMessage
	got  chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 64)} }

func (c *collector) onMessage(m models.PriceMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []models.PriceMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.PriceMessage(nil), c.msgs...)
}

type rotatingKey struct {
	mu sync.Mutex
	n  int
}

func (k *rotatingKey) Key(context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return "key-" + string(rune('a'+k.n)), nil
}

func (k *rotatingKey) Refresh(ctx context.Context) (string, error) {
	k.mu.Lock()
	k.n++
	k.mu.Unlock()
	return k.Key(ctx)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

var fastBackoff = feed.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}

func TestSource_SubscribesAndDecodes(t *testing.T) {
	fake := &fakeKIS{script: func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|005930^093354^71900^5^-100^-0.14"))
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|000660^093354^180000^2^1500^0.84"))
	}}
	srv := httptest.NewServer(fake.handler(t, 2))
	defer srv.Close()

	c := newCollector()
	src := NewSource(wsURL(srv), StaticKey("static"), fastBackoff, zap.NewNop())
	h, err := src.Start(context.Background(), []string{"005930", "000660", "005930"}, c.onMessage)
	require.NoError(t, err)
	defer h.Close()

	msgs := c.wait(t, 2)
	assert.Equal(t, "005930", msgs[0].Code)
	assert.Equal(t, "000660", msgs[1].Code)

	subscribed, keys, conns := fake.snapshot()
	assert.Equal(t, []string{"005930", "000660"}, subscribed, "duplicate codes are sent once")
	assert.Equal(t, []string{"static", "static"}, keys)
	assert.Equal(t, 1, conns, "a bad frame must not drop the connection")
}

func TestSource_EchoesPingPong(t *testing.T) {
	echoed := make(chan string, 1)
	fake := &fakeKIS{script: func(_ int, conn *websocket.Conn) {
		ping := `{"header":{"tr_id":"PINGPONG","datetime":"20241017090000"}}`
		conn.WriteMessage(websocket.TextMessage, []byte(ping))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			echoed <- string(msg)
		}
	}}
	srv := httptest.NewServer(fake.handler(t, 1))
	defer srv.Close()

	src := NewSource(wsURL(srv), StaticKey("k"), fastBackoff, zap.NewNop())
	h, err := src.Start(context.Background(), []string{"005930"}, func(models.PriceMessage) {})
	require.NoError(t, err)
	defer h.Close()

	select {
	case msg := <-echoed:
		assert.Contains(t, msg, "PINGPONG")
	case <-time.After(3 * time.Second):
		t.Fatal("PINGPONG was not echoed")
	}
}

func TestSource_RejectedKeyRefreshesAndResubscribes(t *testing.T) {
	fake := &fakeKIS{script: func(n int, conn *websocket.Conn) {
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"9","msg_cd":"OPSP8996","msg1":"invalid approval"}}`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|005930^093354^71900^5^-100^-0.14"))
	}}
	srv := httptest.NewServer(fake.handler(t, 1))
	defer srv.Close()

	c := newCollector()
	src := NewSource(wsURL(srv), &rotatingKey{}, fastBackoff, zap.NewNop())
	h, err := src.Start(context.Background(), []string{"005930"}, c.onMessage)
	require.NoError(t, err)
	defer h.Close()

	c.wait(t, 1)
	subscribed, keys, conns := fake.snapshot()
	assert.Equal(t, 2, conns)
	assert.Equal(t, []string{"005930", "005930"}, subscribed)
	assert.Equal(t, []string{"key-a", "key-b"}, keys)
}

func TestSource_ReconnectsAfterDrop(t *testing.T) {
	fake := &fakeKIS{}
	fake.script = func(n int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|005930^093354^71900^5^-100^-0.14"))
		if n == 1 {
			conn.Close()
		}
	}
	srv := httptest.NewServer(fake.handler(t, 1))
	defer srv.Close()

	c := newCollector()
	src := NewSource(wsURL(srv), StaticKey("k"), fastBackoff, zap.NewNop())
	h, err := src.Start(context.Background(), []string{"005930"}, c.onMessage)
	require.NoError(t, err)
	defer h.Close()

	msgs := c.wait(t, 2)
	assert.Len(t, msgs, 2)
	_, _, conns := fake.snapshot()
	assert.GreaterOrEqual(t, conns, 2)
}

func TestSource_GivesUpAfterRetryBudget(t *testing.T) {
	src := NewSource("ws://127.0.0.1:1/refused", StaticKey("k"),
		feed.Backoff{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}, zap.NewNop())

	h, err := src.Start(context.Background(), []string{"005930"}, func(models.PriceMessage) {
		t.Error("no message expected")
	})
	require.NoError(t, err, "connection failures are not returned from Start")

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close hung on a source that never connected")
	}
}

func TestSource_StartRejectsEmptyCodes(t *testing.T) {
	src := NewSource("ws://unused", StaticKey("k"), fastBackoff, zap.NewNop())
	_, err := src.Start(context.Background(), nil, func(models.PriceMessage) {})
	assert.ErrorIs(t, err, feed.ErrNoCodes)
}

func TestSource_CloseReleasesConnection(t *testing.T) {
	fake := &fakeKIS{script: func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|005930^093354^71900^5^-100^-0.14"))
	}}
	srv := httptest.NewServer(fake.handler(t, 1))
	defer srv.Close()

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := newCollector()
	src := NewSource(wsURL(srv), StaticKey("k"), fastBackoff, zap.NewNop())
	h, err := src.Start(context.Background(), []string{"005930"}, c.onMessage)
	require.NoError(t, err)

	c.wait(t, 1)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
