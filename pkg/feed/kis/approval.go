package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	approvalEndpoint = "/oauth2/Approval"
	approvalRedisKey = "kisChartKey"
	approvalTTL      = 24 * time.Hour
)

// KeyProvider hands out the WebSocket approval key.
type KeyProvider interface {
	Key(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticKey is a KeyProvider for a fixed key; Refresh returns the same key.
type StaticKey string

func (k StaticKey) Key(context.Context) (string, error)     { return string(k), nil }
func (k StaticKey) Refresh(context.Context) (string, error) { return string(k), nil }

// ApprovalKeys issues approval keys from the KIS REST API and caches them in Redis.
type ApprovalKeys struct {
	rdb       redis.Cmdable
	client    *http.Client
	baseURL   string
	appKey    string
	appSecret string
	logger    *zap.Logger
	now       func() time.Time
}

var _ KeyProvider = (*ApprovalKeys)(nil)

func NewApprovalKeys(rdb redis.Cmdable, client *http.Client, baseURL, appKey, appSecret string, logger *zap.Logger) *ApprovalKeys {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ApprovalKeys{
		rdb:       rdb,
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		appSecret: appSecret,
		logger:    logger,
		now:       time.Now,
	}
}

// Key returns the cached key, requesting a new one on a cache miss.
func (a *ApprovalKeys) Key(ctx context.Context) (string, error) {
	key, err := a.rdb.Get(ctx, approvalRedisKey).Result()
	if err == nil && key != "" {
		return key, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		a.logger.Warn("Approval key cache read failed", zap.Error(err))
	}
	a.logger.Info("No cached approval key, requesting a new one")
	return a.Refresh(ctx)
}

// Refresh always requests a new key and overwrites the cache.
func (a *ApprovalKeys) Refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     a.appKey,
		"secretkey":  a.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("encode approval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+approvalEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build approval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("approval request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read approval response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("approval request: HTTP %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode approval response: %w", err)
	}
	if out.ApprovalKey == "" {
		return "", errors.New("approval response has no approval_key")
	}

	if err := a.rdb.Set(ctx, approvalRedisKey, out.ApprovalKey, approvalTTL).Err(); err != nil {
		a.logger.Warn("Approval key cache write failed", zap.Error(err))
	}
	a.logger.Info("New approval key issued")
	return out.ApprovalKey, nil
}

// RunDailyRefresh renews the key every local midnight until ctx ends.
func (a *ApprovalKeys) RunDailyRefresh(ctx context.Context) {
	for {
		wait := untilMidnight(a.now())
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if _, err := a.Refresh(ctx); err != nil {
			a.logger.Error("Scheduled approval key refresh failed", zap.Error(err))
		}
	}
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
