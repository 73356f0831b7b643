package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// Store keeps interview sessions keyed by id. Implementations return copies,
// so a caller mutating a session must Put it back.
type Store interface {
	Get(ctx context.Context, id string) (*models.InterviewSession, error)
	Put(ctx context.Context, s *models.InterviewSession) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Locker serializes work on one interview across processes sharing a Store
type Locker interface {
	// Lock blocks until the interview is free or ctx is done
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.InterviewSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.InterviewSession)}
}

// Get returns a copy of the session, or models.ErrSessionNotFound
func (m *MemoryStore) Get(_ context.Context, id string) (*models.InterviewSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Put stores a copy of s
func (m *MemoryStore) Put(_ context.Context, s *models.InterviewSession) error {
	if s == nil || s.ID == "" {
		return errors.New("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Delete removes a session; a missing one is not an error
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// List returns the stored ids, sorted
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

const (
	redisKeyPrefix  = "interview:session:"
	redisLockPrefix = "interview:lock:"

	// lockTTL outlasts a slow finalize; a crashed holder frees the lock after it
	lockTTL   = 5 * time.Minute
	lockRetry = 25 * time.Millisecond
)

// releaseLock deletes a lock only while it still holds the caller's token
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps sessions in Redis as JSON so several API instances can
// serve the same interview. Its Lock keeps those instances from interleaving
// work on one interview.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to addr and verifies the connection. Sessions expire
// after ttl of inactivity; zero keeps them forever.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

// Get loads and decodes a session, or returns models.ErrSessionNotFound
func (r *RedisStore) Get(ctx context.Context, id string) (*models.InterviewSession, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var s models.InterviewSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// Put encodes s and refreshes its expiry
func (r *RedisStore) Put(ctx context.Context, s *models.InterviewSession) error {
	if s == nil || s.ID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	if err := r.rdb.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a session; a missing one is not an error
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List scans for stored session ids, sorted
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Lock takes the interview's lock with SET NX PX, polling until it is free
func (r *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	key := redisLockPrefix + id
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock session %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// the caller's context may already be done; a lock left behind
		// expires after lockTTL
		_ = releaseLock.Run(context.Background(), r.rdb, []string{key}, token).Err()
	}, nil
}

// Close releases the Redis connection pool
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
