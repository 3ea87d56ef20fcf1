package rediscache

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/pricefeed"
)

// memClient is an in-process stand-in for Redis GET/SET.
type memClient struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memClient) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

// countingFeed counts reads of the wrapped feed.
type countingFeed struct {
	*pricefeed.Mock
	rounds   int
	decimals int
}

func (c *countingFeed) LatestRound(ctx context.Context) (pricefeed.Round, error) {
	c.rounds++
	return c.Mock.LatestRound(ctx)
}

func (c *countingFeed) Decimals(ctx context.Context) (uint8, error) {
	c.decimals++
	return c.Mock.Decimals(ctx)
}

func TestCacheServesRepeatedReads(t *testing.T) {
	next := &countingFeed{Mock: pricefeed.NewDefaultMock()}
	rdb := newMemClient()
	f := New(next, rdb, WithTTL(time.Minute))

	first, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	second, err := f.LatestRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, next.rounds)
	assert.Equal(t, 0, first.Answer.Cmp(second.Answer))
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.Equal(t, time.Minute, rdb.ttls["custody:pricefeed:"+pricefeed.MockHandle+":round"])

	for i := 0; i < 3; i++ {
		d, err := f.Decimals(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint8(18), d)
	}
	assert.Equal(t, 1, next.decimals)
	assert.Equal(t, pricefeed.MockHandle, f.Handle())
}

func TestCacheFallsThroughOnRedisError(t *testing.T) {
	next := &countingFeed{Mock: pricefeed.NewDefaultMock()}
	rdb := newMemClient()
	rdb.getErr = errors.New("connection reset")
	rdb.setErr = errors.New("connection reset")
	f := New(next, rdb)

	for i := 0; i < 2; i++ {
		_, err := f.LatestRound(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.rounds)
}

func TestCacheDoesNotMaskFeedFailure(t *testing.T) {
	mock := pricefeed.NewDefaultMock()
	mock.Fail(errors.New("aggregator paused"))
	f := New(mock, newMemClient())

	_, err := pricefeed.NewAdapter(f).Convert(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, pricefeed.ErrUnavailable)
}

func TestCorruptEntryIgnored(t *testing.T) {
	next := &countingFeed{Mock: pricefeed.NewDefaultMock()}
	rdb := newMemClient()
	f := New(next, rdb)
	rdb.data[f.key] = "{not json"

	_, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.rounds)
}
