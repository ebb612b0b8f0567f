package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const stateKeyPrefix = "risk:state:"

// RedisStore persists risk state in Redis so it survives restarts.
// Writes for one account are serialized through a per-account lock held
// across the read-modify-write; if Redis becomes unreachable the store
// degrades to in-memory state and keeps the engine running.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	fallback *MemoryStore
	degraded bool
}

func NewRedisStore(redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store := &RedisStore{
		client:   client,
		logger:   logger.With().Str("component", "risk_state").Logger(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		fallback: NewMemoryStore(),
	}
	if err := client.Ping(ctx).Err(); err != nil {
		store.logger.Warn().Err(err).Msg("redis unreachable, using in-memory risk state")
		store.degraded = true
	}
	return store, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) accountLock(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lk, ok := r.locks[accountID]
	if !ok {
		lk = &sync.Mutex{}
		r.locks[accountID] = lk
	}
	return lk
}

func (r *RedisStore) Snapshot(ctx context.Context, accountID string, equity float64) (State, error) {
	return r.Commit(ctx, accountID, equity, func(s State) State { return s })
}

func (r *RedisStore) isDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func (r *RedisStore) degrade() {
	r.mu.Lock()
	r.degraded = true
	r.mu.Unlock()
}

func (r *RedisStore) Commit(ctx context.Context, accountID string, equity float64, fn func(State) State) (State, error) {
	if r.isDegraded() {
		return r.fallback.Commit(ctx, accountID, equity, fn)
	}

	lk := r.accountLock(accountID)
	lk.Lock()
	defer lk.Unlock()

	st, err := r.load(ctx, accountID)
	if err != nil {
		r.logger.Warn().Err(err).Str("account", accountID).Msg("redis read failed, degrading to memory")
		r.degrade()
		return r.fallback.Commit(ctx, accountID, equity, fn)
	}

	st = fn(st.rolled(r.now(), equity))
	if err := r.save(ctx, accountID, st); err != nil {
		return State{}, fmt.Errorf("persist risk state: %w", err)
	}
	return st, nil
}

func (r *RedisStore) load(ctx context.Context, accountID string) (State, error) {
	raw, err := r.client.Get(ctx, stateKeyPrefix+accountID).Bytes()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		r.logger.Error().Err(err).Str("account", accountID).Msg("corrupt risk state, resetting")
		return State{}, nil
	}
	return st, nil
}

func (r *RedisStore) save(ctx context.Context, accountID string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, stateKeyPrefix+accountID, raw, 0).Err()
}
