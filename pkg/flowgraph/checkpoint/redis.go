package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// farFuture is the index score, in Unix milliseconds, used for checkpoints
// without a TTL.
const farFuture = 4102444800000 // 2100-01-01

// commitScript writes a checkpoint only if its sequence is greater than
// the stored one. An expired key counts as sequence zero.
//
// KEYS: thread, index, updated. ARGV: sequence, data, ttl ms, expiry
// score, updated score, thread ID.
var commitScript = backend.NewScript(`
	local cur = tonumber(redis.call("hget", KEYS[1], "seq") or "0")
	if cur >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call("hset", KEYS[1], "data", ARGV[2], "seq", ARGV[1])
	if tonumber(ARGV[3]) > 0 then
		redis.call("pexpire", KEYS[1], ARGV[3])
	else
		redis.call("persist", KEYS[1])
	end
	redis.call("zadd", KEYS[2], ARGV[4], ARGV[6])
	redis.call("zadd", KEYS[3], ARGV[5], ARGV[6])
	return 1
`)

// pruneScript drops index entries whose expiry has passed from both
// sorted sets.
//
// KEYS: index, updated. ARGV: now in Unix milliseconds.
var pruneScript = backend.NewScript(`
	local ids = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1])
	for _, id in ipairs(ids) do
		redis.call("zrem", KEYS[1], id)
		redis.call("zrem", KEYS[2], id)
	end
	return #ids
`)

// RedisStore persists checkpoints in Redis so that several service replicas
// can suspend and resume the same threads.
//
// Each thread is one hash under prefix+"thread:" holding the checkpoint and
// its sequence. One sorted set indexes thread IDs by expiry, which lets
// List prune entries whose keys have expired; another records when each
// thread was last saved. Thread keys live in their own namespace, so no
// thread ID can collide with the sorted sets.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiration for checkpoints. Zero means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for checkpoints.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store with its own client.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisStoreFromClient creates a Redis-backed store from an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "auditflow:checkpoint:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *backend.Client {
	return s.client
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) updatedKey() string {
	return s.prefix + "updated"
}

// scores returns the index and updated scores for a write at now.
func (s *RedisStore) scores(now time.Time) (expiry, updated float64) {
	expiry = farFuture
	if s.ttl > 0 {
		expiry = float64(now.Add(s.ttl).UnixMilli())
	}
	return expiry, float64(now.UnixMilli())
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, threadID string, data []byte) error {
	expiry, updated := s.scores(time.Now())
	key := s.key(threadID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "seq", 0)
	if s.ttl > 0 {
		pipe.PExpire(ctx, key, s.ttl)
	} else {
		pipe.Persist(ctx, key)
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: expiry, Member: threadID})
	pipe.ZAdd(ctx, s.updatedKey(), backend.Z{Score: updated, Member: threadID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Commit implements Store.
func (s *RedisStore) Commit(ctx context.Context, threadID string, sequence int, data []byte) error {
	expiry, updated := s.scores(time.Now())

	n, err := commitScript.Run(ctx, s.client,
		[]string{s.key(threadID), s.indexKey(), s.updatedKey()},
		sequence, data, s.ttl.Milliseconds(),
		strconv.FormatFloat(expiry, 'f', 0, 64),
		strconv.FormatFloat(updated, 'f', 0, 64),
		threadID,
	).Int()
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: thread %s, commit %d", ErrStaleSequence, threadID, sequence)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.key(threadID), "data").Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store. Expired entries are pruned lazily from both
// sorted sets.
func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := pruneScript.Run(ctx, s.client, []string{s.indexKey(), s.updatedKey()}, now).Err(); err != nil {
		return nil, fmt.Errorf("prune checkpoint index: %w", err)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		size, err := s.client.HStrLen(ctx, s.key(id), "data").Result()
		if err != nil {
			return nil, fmt.Errorf("stat checkpoint %s: %w", id, err)
		}
		if size == 0 {
			// Expired before its index score; Redis and local clocks differ.
			s.client.ZRem(ctx, s.indexKey(), id)
			s.client.ZRem(ctx, s.updatedKey(), id)
			continue
		}
		info := Info{ThreadID: id, Size: size}
		if ms, err := s.client.ZScore(ctx, s.updatedKey(), id).Result(); err == nil {
			info.Timestamp = time.UnixMilli(int64(ms))
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)
	pipe.ZRem(ctx, s.updatedKey(), threadID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
