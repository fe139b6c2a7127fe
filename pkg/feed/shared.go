package feed

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// Shared multiplexes many listeners onto one upstream subscription over the
// union of their codes. Codes are ref-counted; the upstream is reopened only
// when the union changes and is closed when nobody listens. The old upstream
// is always closed before the new one starts, so at most one upstream session
// exists at a time.
//
// A new listener immediately receives the last quote seen for each of its
// codes.
type Shared struct {
	ctx    context.Context
	source Source
	logger *zap.Logger

	// reopen serializes upstream swaps; mu guards everything else. Deliveries
	// happen under mu so a replayed quote can never overtake a live one.
	reopen sync.Mutex

	mu        sync.Mutex
	refs      map[string]int
	listeners map[*listener]struct{}
	last      map[string]models.PriceMessage
	upstream  Handle
	upCodes   []string
}

var _ Source = (*Shared)(nil)

// NewShared wraps source. ctx bounds every upstream subscription.
func NewShared(ctx context.Context, source Source, logger *zap.Logger) *Shared {
	return &Shared{
		ctx:       ctx,
		source:    source,
		logger:    logger,
		refs:      make(map[string]int),
		listeners: make(map[*listener]struct{}),
		last:      make(map[string]models.PriceMessage),
	}
}

type listener struct {
	shared *Shared
	sub    *Subscription
	codes  map[string]bool
	once   sync.Once
}

// Close detaches the listener and releases its codes.
func (l *listener) Close() error {
	l.once.Do(func() {
		l.sub.Close()
		l.shared.detach(l)
		if err := l.shared.sync(); err != nil {
			l.shared.logger.Warn("Upstream resubscribe failed", zap.Error(err))
		}
	})
	return nil
}

func (s *Shared) Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (Handle, error) {
	codes = Dedup(codes)
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}

	sub, _ := NewSubscription(ctx, onMessage)
	l := &listener{shared: s, sub: sub, codes: make(map[string]bool, len(codes))}
	for _, c := range codes {
		l.codes[c] = true
	}

	s.mu.Lock()
	s.listeners[l] = struct{}{}
	for c := range l.codes {
		s.refs[c]++
	}
	s.mu.Unlock()

	if err := s.sync(); err != nil {
		s.detach(l)
		sub.Close()
		// bring back the upstream the other listeners had
		if rerr := s.sync(); rerr != nil {
			s.logger.Error("Upstream restore failed", zap.Error(rerr))
		}
		return nil, err
	}

	s.mu.Lock()
	for _, c := range codes {
		if m, ok := s.last[c]; ok {
			sub.Deliver(m)
		}
	}
	s.mu.Unlock()

	return l, nil
}

// Codes returns the codes the upstream currently covers.
func (s *Shared) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.upCodes...)
}

func (s *Shared) detach(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listeners[l]; !ok {
		return
	}
	delete(s.listeners, l)
	for c := range l.codes {
		s.refs[c]--
		if s.refs[c] <= 0 {
			delete(s.refs, c)
			delete(s.last, c)
		}
	}
}

// sync makes the upstream cover exactly the referenced codes.
func (s *Shared) sync() error {
	s.reopen.Lock()
	defer s.reopen.Unlock()

	s.mu.Lock()
	want := make([]string, 0, len(s.refs))
	for c := range s.refs {
		want = append(want, c)
	}
	sort.Strings(want)
	same := s.upstream != nil && equalCodes(want, s.upCodes) || s.upstream == nil && len(want) == 0
	old := s.upstream
	s.mu.Unlock()

	if same {
		return nil
	}

	// not under mu: the old upstream may be blocked in dispatch
	if old != nil {
		old.Close()
	}

	var h Handle
	var err error
	if len(want) > 0 {
		h, err = s.source.Start(s.ctx, want, s.dispatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.upstream, s.upCodes = nil, nil
		return err
	}
	s.upstream, s.upCodes = h, want
	if h != nil {
		s.logger.Debug("Upstream subscribed", zap.Strings("codes", want))
	}
	return nil
}

func (s *Shared) dispatch(msg models.PriceMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs[msg.Code] == 0 {
		return
	}
	s.last[msg.Code] = msg
	for l := range s.listeners {
		if l.codes[msg.Code] {
			l.sub.Deliver(msg)
		}
	}
}

func equalCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
