package api

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-redis/redis/v8"
)

// SignatureHeader carries the EIP-191 personal signature of the raw
// request body, hex encoded.
const SignatureHeader = "X-Custody-Signature"

// DefaultSignatureWindow bounds the clock skew accepted on the
// "timestamp" field of a signed request.
const DefaultSignatureWindow = 5 * time.Minute

// Authentication errors.
var (
	ErrUnsigned       = errors.New("api: request signature required")
	ErrBadSignature   = errors.New("api: invalid request signature")
	ErrStaleRequest   = errors.New("api: request timestamp outside the accepted window")
	ErrReplayed       = errors.New("api: request already processed")
	ErrSignerMismatch = errors.New("api: from does not match the request signer")
)

// Actions named in signed bodies.
const (
	ActionFund     = "fund"
	ActionWithdraw = "withdraw"
)

// signedFields are present in every mutating request body.
type signedFields struct {
	// Action binds the signature to an endpoint.
	Action string `json:"action"`
	From   string `json:"from"`
	// Timestamp is unix seconds.
	Timestamp int64 `json:"timestamp"`
}

func (f *signedFields) signed() signedFields { return *f }

type signedRequest interface {
	signed() signedFields
}

// Sign returns the SignatureHeader value for body signed by key.
func Sign(body []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(body), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced signature over body.
// Recovery ids in both the 0/1 and the 27/28 convention are accepted.
func Recover(body []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// authenticate resolves the caller of a signed request. Only requests with
// a valid signature and timestamp reach the replay record.
func (h *Handler) authenticate(ctx context.Context, action string, body []byte, signature string, fields signedFields) (common.Address, error) {
	if signature == "" {
		return common.Address{}, ErrUnsigned
	}
	signer, err := Recover(body, signature)
	if err != nil {
		return common.Address{}, err
	}
	if fields.Action != action {
		return common.Address{}, fmt.Errorf("%w: signed for action %q, not %q", ErrBadSignature, fields.Action, action)
	}

	if fields.Timestamp == 0 {
		return common.Address{}, fmt.Errorf("%w: timestamp is required", ErrStaleRequest)
	}
	skew := h.now().Sub(time.Unix(fields.Timestamp, 0))
	if skew > h.window || -skew > h.window {
		return common.Address{}, fmt.Errorf("%w: skew %s", ErrStaleRequest, skew.Round(time.Second))
	}

	if fields.From != "" {
		from, err := parseAddress("from", fields.From)
		if err != nil {
			return common.Address{}, err
		}
		if from != signer {
			return common.Address{}, fmt.Errorf("%w: from %s, signed by %s", ErrSignerMismatch, from.Hex(), signer.Hex())
		}
	}

	fresh, err := h.nonces.Claim(ctx, crypto.Keccak256Hash(signer.Bytes(), body).Hex(), 2*h.window)
	if err != nil {
		return common.Address{}, fmt.Errorf("api: record request: %w", err)
	}
	if !fresh {
		return common.Address{}, ErrReplayed
	}
	return signer, nil
}

// Nonces remembers signed requests so each one is served once.
type Nonces interface {
	// Claim records key for ttl and reports false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type memoryNonces struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryNonces returns an in-process Nonces.
func NewMemoryNonces(now func() time.Time) Nonces {
	if now == nil {
		now = time.Now
	}
	return &memoryNonces{seen: map[string]time.Time{}, now: now}
}

func (m *memoryNonces) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, expiry := range m.seen {
		if !now.Before(expiry) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

// RedisClient is the subset of redis.Cmdable used by RedisNonces.
// *redis.Client satisfies it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type redisNonces struct {
	rdb RedisClient
}

// RedisNonces shares the replay record between replicas through Redis.
func RedisNonces(rdb RedisClient) Nonces {
	return &redisNonces{rdb: rdb}
}

func (r *redisNonces) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, "custody:request:"+key, 1, ttl).Result()
}
