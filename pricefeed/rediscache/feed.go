// Package rediscache shares the latest price round between replicas
// through Redis so that each replica does not hit the RPC node.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/xraph/custody/pricefeed"
)

// DefaultTTL is how long a cached round is served.
const DefaultTTL = 15 * time.Second

// Client is the subset of redis.Cmdable used by the cache.
// *redis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Feed decorates a pricefeed.Feed with a Redis cache. Redis failures are
// logged and fall through to the wrapped feed.
type Feed struct {
	next   pricefeed.Feed
	rdb    Client
	ttl    time.Duration
	key    string
	logger *slog.Logger

	decMu    sync.Mutex
	decimals *uint8
}

var _ pricefeed.Feed = (*Feed)(nil)

// Option configures a Feed.
type Option func(*Feed)

// WithTTL sets the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(f *Feed) { f.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

// New wraps next.
func New(next pricefeed.Feed, rdb Client, opts ...Option) *Feed {
	f := &Feed{
		next:   next,
		rdb:    rdb,
		ttl:    DefaultTTL,
		key:    "custody:pricefeed:" + next.Handle() + ":round",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) Handle() string { return f.next.Handle() }

// Decimals is read once from the wrapped feed and kept in process.
func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	f.decMu.Lock()
	defer f.decMu.Unlock()

	if f.decimals != nil {
		return *f.decimals, nil
	}
	d, err := f.next.Decimals(ctx)
	if err != nil {
		return 0, err
	}
	f.decimals = &d
	return d, nil
}

type cachedRound struct {
	ID        string    `json:"id"`
	Answer    string    `json:"answer"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (f *Feed) LatestRound(ctx context.Context) (pricefeed.Round, error) {
	if round, ok := f.lookup(ctx); ok {
		return round, nil
	}

	round, err := f.next.LatestRound(ctx)
	if err != nil {
		return pricefeed.Round{}, err
	}
	f.store(ctx, round)
	return round, nil
}

func (f *Feed) lookup(ctx context.Context) (pricefeed.Round, bool) {
	raw, err := f.rdb.Get(ctx, f.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return pricefeed.Round{}, false
	}
	if err != nil {
		f.logger.Warn("price cache read failed", "key", f.key, "error", err)
		return pricefeed.Round{}, false
	}

	var c cachedRound
	if err := json.Unmarshal(raw, &c); err != nil {
		f.logger.Warn("price cache entry corrupt", "key", f.key, "error", err)
		return pricefeed.Round{}, false
	}
	id, ok1 := new(big.Int).SetString(c.ID, 10)
	answer, ok2 := new(big.Int).SetString(c.Answer, 10)
	if !ok1 || !ok2 {
		f.logger.Warn("price cache entry corrupt", "key", f.key)
		return pricefeed.Round{}, false
	}
	return pricefeed.Round{ID: id, Answer: answer, UpdatedAt: c.UpdatedAt}, true
}

func (f *Feed) store(ctx context.Context, round pricefeed.Round) {
	if round.Answer == nil || round.ID == nil {
		return
	}
	raw, err := json.Marshal(cachedRound{
		ID:        round.ID.String(),
		Answer:    round.Answer.String(),
		UpdatedAt: round.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := f.rdb.Set(ctx, f.key, raw, f.ttl).Err(); err != nil {
		f.logger.Warn("price cache write failed", "key", f.key, "error", fmt.Errorf("rediscache: set: %w", err))
	}
}
