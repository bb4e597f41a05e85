package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/config"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyIngestChat    = "staybook:ingest:chat:%s"
	keyIngestMessage = "staybook:ingest:message:%s"

	// anonymousChat buckets requests that carry no chat id.
	anonymousChat = "anonymous"

	endpointIngest = "ingest"

	DenyReasonChatRate      = "chat_rate"
	DenyReasonMessageLocked = "message_in_flight"
)

// IngestLimiter throttles ingestion per chat and keeps concurrent retries
// of one message from reaching the database together. The database guard
// stays authoritative, so every Redis failure fails open.
type IngestLimiter struct {
	log     *zap.Logger
	metrics *obsmetrics.Metrics

	bucket *TokenBucket
	locks  *inFlightLocks

	chatRate  float64
	chatBurst int
	lockTTL   time.Duration
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Client  redis.UniversalClient `name:"ratelimit_redis" optional:"true"`
	Metrics *obsmetrics.Metrics   `optional:"true"`
}

// NewIngestLimiter returns nil when rate limiting is disabled. A nil
// limiter allows everything.
func NewIngestLimiter(p Params) (*IngestLimiter, error) {
	cfg := p.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}
	if p.Client == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	if cfg.ChatRate <= 0 || cfg.ChatBurst <= 0 {
		return nil, errors.New("rate limit chat rate and burst must be positive")
	}
	ttl := cfg.MessageLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	log := zap.NewNop()
	if p.Log != nil {
		log = p.Log.Named("ratelimit")
	}
	return &IngestLimiter{
		log:       log,
		metrics:   p.Metrics,
		bucket:    NewTokenBucket(p.Client),
		locks:     newInFlightLocks(p.Client, ttl),
		chatRate:  cfg.ChatRate,
		chatBurst: cfg.ChatBurst,
		lockTTL:   ttl,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowChat takes a token from the chat's bucket.
func (l *IngestLimiter) AllowChat(ctx context.Context, chatID string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, chatKey(chatID), l.chatRate, l.chatBurst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing", zap.Error(err))
		return Result{Allowed: true}
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpointIngest)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpointIngest, DenyReasonChatRate)
	}
	return res
}

// MessageLock is a held in-flight lock. Unlock is safe on a zero value.
type MessageLock struct {
	key  string
	held *redislock.Lock
}

// LockMessage reports false when another request is already ingesting the
// same message id. An empty message id is never locked.
func (l *IngestLimiter) LockMessage(ctx context.Context, messageID string) (MessageLock, bool) {
	messageID = strings.TrimSpace(messageID)
	if !l.Enabled() || messageID == "" {
		return MessageLock{}, true
	}
	key := fmt.Sprintf(keyIngestMessage, messageID)
	held, err := l.locks.acquire(ctx, key)
	if err != nil {
		l.log.Warn("message lock failed, proceeding", zap.String("message_id", messageID), zap.Error(err))
		return MessageLock{}, true
	}
	if held == nil {
		l.metrics.RecordRateLimitDenied(ctx, endpointIngest, DenyReasonMessageLocked)
		return MessageLock{}, false
	}
	return MessageLock{key: key, held: held}, true
}

func (l *IngestLimiter) Unlock(ctx context.Context, lock MessageLock) {
	if !l.Enabled() || lock.held == nil {
		return
	}
	if err := l.locks.release(ctx, lock.held); err != nil {
		l.log.Warn("message lock release failed", zap.String("key", lock.key), zap.Error(err))
	}
}

func chatKey(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = anonymousChat
	}
	return fmt.Sprintf(keyIngestChat, chatID)
}
