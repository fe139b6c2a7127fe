package kis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

const (
	dialTimeout = 10 * time.Second
	writeWait   = 5 * time.Second
)

var errKeyRejected = errors.New("kis: approval key rejected")

// Source subscribes to H0STCNT0 quotes over one WebSocket per Start.
type Source struct {
	url     string
	keys    KeyProvider
	backoff feed.Backoff
	logger  *zap.Logger
	dialer  ws.Dialer
}

var _ feed.Source = (*Source)(nil)

func NewSource(url string, keys KeyProvider, backoff feed.Backoff, logger *zap.Logger) *Source {
	return &Source{
		url:     url,
		keys:    keys,
		backoff: backoff,
		logger:  logger,
		dialer:  ws.Dialer{Timeout: dialTimeout},
	}
}

func (s *Source) Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (feed.Handle, error) {
	codes = feed.Dedup(codes)
	if len(codes) == 0 {
		return nil, feed.ErrNoCodes
	}

	sub, subCtx := feed.NewSubscription(ctx, onMessage)
	sub.Go(subCtx, func(ctx context.Context) {
		s.run(ctx, sub, codes)
	})
	return sub, nil
}

// run keeps one session alive, reconnecting with backoff until ctx ends or
// the retry budget is spent.
func (s *Source) run(ctx context.Context, sub *feed.Subscription, codes []string) {
	attempt := 0
	for {
		received, err := s.session(ctx, sub, codes)
		if ctx.Err() != nil {
			return
		}
		if received {
			attempt = 0
		}

		if errors.Is(err, errKeyRejected) {
			if _, kerr := s.keys.Refresh(ctx); kerr != nil {
				s.logger.Error("Approval key refresh failed", zap.Error(kerr))
			}
		}

		attempt++
		if s.backoff.Exhausted(attempt) {
			s.logger.Error("Giving up on quote feed", zap.Int("attempts", attempt-1), zap.Error(err))
			return
		}
		s.logger.Warn("Quote feed disconnected, reconnecting", zap.Error(err), zap.Int("attempt", attempt))
		if !s.backoff.Wait(ctx, attempt-1) {
			return
		}
	}
}

type clientConn struct {
	io.Reader
	io.Writer
}

// session runs one connection. received reports whether any quote arrived.
func (s *Source) session(ctx context.Context, sub *feed.Subscription, codes []string) (received bool, err error) {
	key, err := s.keys.Key(ctx)
	if err != nil {
		return false, fmt.Errorf("approval key: %w", err)
	}

	conn, br, _, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	// unblock the read loop on cancel
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// the handshake may have buffered the first frames
	rw := clientConn{Reader: conn, Writer: conn}
	if br != nil {
		rw.Reader = io.MultiReader(br, conn)
	}

	for _, code := range codes {
		payload, err := EncodeSubscribe(key, code)
		if err != nil {
			return false, err
		}
		if err := s.write(conn, payload); err != nil {
			return false, fmt.Errorf("subscribe %s: %w", code, err)
		}
	}
	s.logger.Info("Quote feed subscribed", zap.Strings("codes", codes))

	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			return received, err
		}
		if op != ws.OpText {
			continue
		}

		frame, err := Decode(data)
		if err != nil {
			s.logger.Warn("Discarding undecodable frame", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
			continue
		}

		switch frame.Kind {
		case FrameQuote:
			received = true
			if !sub.Deliver(frame.Quote) {
				return received, nil
			}
		case FramePingPong:
			if err := s.write(conn, frame.Raw); err != nil {
				return received, fmt.Errorf("pingpong: %w", err)
			}
		case FrameControl:
			if err := s.handleControl(frame.Control); err != nil {
				return received, err
			}
		}
	}
}

func (s *Source) handleControl(c ControlMessage) error {
	switch {
	case c.Body.MsgCd == MsgCodeSubscribed:
		s.logger.Debug("Subscribe acknowledged", zap.String("code", c.Header.TrKey), zap.String("msg", c.Body.Msg1))
	case c.Body.MsgCd == MsgCodeAlreadySubscribed:
		s.logger.Warn("Already subscribed", zap.String("code", c.Header.TrKey))
	case c.Rejected():
		s.logger.Warn("Subscription rejected", zap.String("code", c.Header.TrKey),
			zap.String("msg_cd", c.Body.MsgCd), zap.String("msg", c.Body.Msg1))
		return errKeyRejected
	default:
		s.logger.Warn("Unknown control message", zap.String("tr_id", c.Header.TrID))
	}
	return nil
}

func (s *Source) write(conn net.Conn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteClientText(conn, payload)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
