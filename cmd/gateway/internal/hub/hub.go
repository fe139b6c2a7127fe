package hub

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/protocol"
	"github.com/SunYerim/StockOfGalaxy/pkg/board"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/rowstore"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// session is one connected viewer: the codes it watches, the board currently
// mounted for them and the pump draining that board.
type session struct {
	codes    map[string]bool
	board    *board.Board
	pumpDone chan struct{}
}

// Hub mounts one board per client. Boards are never shared; every
// subscribe/unsubscribe remounts a board for the client's code set that keeps
// the prices already known. Boards read from one shared upstream, so clients
// watching the same code cost a single feed subscription.
type Hub struct {
	ctx     context.Context
	catalog *catalog.Catalog
	source  feed.Source
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[ClientInterface]*session
}

func NewHub(ctx context.Context, cat *catalog.Catalog, source feed.Source, logger *zap.Logger) *Hub {
	return &Hub{
		ctx:      ctx,
		catalog:  cat,
		source:   feed.NewShared(ctx, source, logger),
		logger:   logger,
		sessions: make(map[ClientInterface]*session),
	}
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessionFor(client)

	var valid []string
	for _, code := range req.Payload.Symbols {
		// Idempotency: Ignore if already subscribed
		if h.catalog.Contains(code) && !s.codes[code] {
			s.codes[code] = true
			valid = append(valid, code)
		}
	}

	if len(valid) == 0 {
		h.sendError(client, req.ID, "No valid/new symbols provided")
		return
	}

	b, err := h.remount(client, s)
	if err != nil {
		for _, code := range valid {
			delete(s.codes, code)
		}
		h.logger.Error("Failed to mount board", zap.String("client", client.ID()), zap.Error(err))
		h.sendError(client, req.ID, "Subscription failed")
		return
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", valid))
	h.startPump(client, s, b)
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	var b *board.Board
	if s, ok := h.sessions[client]; ok {
		for _, code := range req.Payload.Symbols {
			if s.codes[code] {
				delete(s.codes, code)
				removed = append(removed, code)
			}
		}
		if len(removed) > 0 {
			var err error
			if b, err = h.remount(client, s); err != nil {
				// the old board is still mounted, so keep its codes
				for _, code := range removed {
					s.codes[code] = true
				}
				h.logger.Error("Failed to remount board", zap.String("client", client.ID()), zap.Error(err))
				h.sendError(client, req.ID, "Unsubscribe failed")
				return
			}
		}
	}

	if len(removed) == 0 {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
		return
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	if b != nil {
		h.startPump(client, h.sessions[client], b)
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[client]; ok {
		h.unmount(s)
		// Clear the set but keep the client registered
		s.codes = make(map[string]bool)
	}
	h.sendAck(client, req.ID, "success", "Unsubscribed from all symbols")
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[client]; ok {
		h.unmount(s)
		delete(h.sessions, client)
	}
	client.Close()
}

// Shutdown unmounts every board and closes every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client, s := range h.sessions {
		h.unmount(s)
		client.Close()
	}
	h.sessions = make(map[ClientInterface]*session)
	h.logger.Info("Hub shut down")
}

// Sessions reports how many clients are registered.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) sessionFor(client ClientInterface) *session {
	s, ok := h.sessions[client]
	if !ok {
		s = &session{codes: make(map[string]bool)}
		h.sessions[client] = s
	}
	return s
}

// remount builds a board for the session's code set, seeds it with the prices
// the current board already has and swaps it in once it is mounted. When the
// set is empty the current board is unmounted and nil is returned. On error the
// current board stays untouched. Caller holds h.mu and starts the pump.
func (h *Hub) remount(client ClientInterface, s *session) (*board.Board, error) {
	if len(s.codes) == 0 {
		h.unmount(s)
		return nil, nil
	}

	codes := make([]string, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}

	b, err := board.New(h.catalog, codes, h.source, h.logger.With(zap.String("client", client.ID())))
	if err != nil {
		return nil, err
	}
	if s.board != nil {
		b.Carry(s.board.Snapshot())
	}
	if err := b.Mount(h.ctx); err != nil {
		return nil, err
	}

	h.unmount(s)
	s.board = b
	return b, nil
}

// unmount stops the session's board and waits for its pump to drain, so
// nothing from the old board reaches the client after this returns.
func (h *Hub) unmount(s *session) {
	if s.board == nil {
		return
	}
	if err := s.board.Unmount(); err != nil {
		h.logger.Warn("Board unmount failed", zap.Error(err))
	}
	s.board = nil
	if s.pumpDone != nil {
		<-s.pumpDone
		s.pumpDone = nil
	}
}

func (h *Hub) startPump(client ClientInterface, s *session, b *board.Board) {
	done := make(chan struct{})
	s.pumpDone = done
	go pump(client, b, done)
}

// pump sends the full board once and then only rows that changed, until the
// board is unmounted.
func pump(client ClientInterface, b *board.Board, done chan<- struct{}) {
	defer close(done)

	last := b.Snapshot()
	client.SendJSON(protocol.RowsMessage(last))

	for range b.Changed() {
		next := b.Snapshot()
		for _, row := range rowstore.Diff(last, next) {
			client.SendJSON(protocol.RowMessage(row))
		}
		last = next
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Message: msg})
}
