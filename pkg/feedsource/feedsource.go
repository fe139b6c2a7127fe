// Package feedsource builds the configured feed.Source.
package feedsource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed/kis"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed/redisfeed"
)

// New returns the source named by cfg.Feed.Source. For "kis" it also starts
// the daily approval-key refresh, which stops with ctx.
func New(ctx context.Context, cfg config.FeedConfig, rdb *redis.Client, logger *zap.Logger) (feed.Source, error) {
	backoff := feed.BackoffFromConfig(cfg)

	switch cfg.Source {
	case "kis":
		if cfg.AppKey == "" || cfg.AppSecret == "" {
			return nil, fmt.Errorf("kis feed needs FEED_APP_KEY and FEED_APP_SECRET")
		}
		keys := kis.NewApprovalKeys(rdb, &http.Client{Timeout: 10 * time.Second},
			cfg.BaseAPIURL, cfg.AppKey, cfg.AppSecret, logger)
		go keys.RunDailyRefresh(ctx)
		return kis.NewSource(cfg.URL, keys, backoff, logger), nil
	case "redis":
		return redisfeed.NewSource(rdb, backoff, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.Source)
	}
}

// NewRedisClient opens the client shared by the feed and the snapshot reads.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
