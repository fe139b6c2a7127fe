// Package redisfeed is a Source backed by the processor's Redis keys and
// pub/sub channels.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

const (
	KeyPrefix     = "stock:"
	ChannelPrefix = "prices."
)

func SnapshotKey(code string) string { return KeyPrefix + code }
func Channel(code string) string     { return ChannelPrefix + code }

// Source seeds every subscription with the latest stored quote and then
// follows the live channel.
type Source struct {
	rdb     *redis.Client
	backoff feed.Backoff
	logger  *zap.Logger
}

var _ feed.Source = (*Source)(nil)

func NewSource(rdb *redis.Client, backoff feed.Backoff, logger *zap.Logger) *Source {
	return &Source{rdb: rdb, backoff: backoff, logger: logger}
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

func (s *Source) run(ctx context.Context, sub *feed.Subscription, codes []string) {
	channels := make([]string, len(codes))
	for i, code := range codes {
		channels[i] = Channel(code)
	}

	attempt := 0
	for {
		err := s.session(ctx, sub, codes, channels)
		if ctx.Err() != nil || sub.Closed() {
			return
		}

		attempt++
		if s.backoff.Exhausted(attempt) {
			s.logger.Error("Giving up on redis feed", zap.Int("attempts", attempt-1), zap.Error(err))
			return
		}
		s.logger.Warn("Redis feed subscribe failed, retrying", zap.Error(err), zap.Int("attempt", attempt))
		if !s.backoff.Wait(ctx, attempt-1) {
			return
		}
	}
}

// session returns an error only when the subscription could not be set up;
// once confirmed, go-redis reconnects the pub/sub connection on its own.
func (s *Source) session(ctx context.Context, sub *feed.Subscription, codes, channels []string) error {
	ps := s.rdb.Subscribe(ctx, channels...)
	defer ps.Close()

	// subscribe first so nothing published after the snapshot read is lost
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.deliverSnapshots(ctx, sub, codes)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := decode(msg.Payload)
			if err != nil {
				s.logger.Warn("Discarding undecodable update", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !sub.Deliver(m) {
				return nil
			}
		}
	}
}

func (s *Source) deliverSnapshots(ctx context.Context, sub *feed.Subscription, codes []string) {
	snapshots, err := Snapshots(ctx, s.rdb, codes)
	if err != nil {
		s.logger.Warn("Snapshot read failed, waiting for live updates", zap.Error(err))
		return
	}
	for _, m := range snapshots {
		if !sub.Deliver(m) {
			return
		}
	}
}

// Snapshots fetches the latest stored quote per code (MGET). Missing or
// undecodable entries are skipped.
func Snapshots(ctx context.Context, rdb redis.Cmdable, codes []string) ([]models.PriceMessage, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = SnapshotKey(code)
	}

	results, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []models.PriceMessage
	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		m, err := decode(payload)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func decode(payload string) (models.PriceMessage, error) {
	var m models.PriceMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return m, err
	}
	if m.Code == "" {
		return m, fmt.Errorf("update has no code")
	}
	return m, nil
}
