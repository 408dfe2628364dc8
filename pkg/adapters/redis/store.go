package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/replyflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "replyflow:session:"

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Store implements ports.SessionStore using Redis.
// Saves run in a WATCH/MULTI transaction so the revision check and the write are atomic.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to build a Locker on the same connection.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) activeKey(conversationID string) string {
	return s.prefix + "active:" + conversationID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the session if its revision matches the stored one.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	key := s.key(session.ID)
	active := s.activeKey(session.ConversationID)

	txf := func(tx *backend.Tx) error {
		stored, err := s.storedRevision(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != session.Revision {
			return fmt.Errorf("%w: stored %d, have %d", domain.ErrRevisionConflict, stored, session.Revision)
		}
		owner, err := tx.Get(ctx, active).Result()
		if err != nil && !errors.Is(err, backend.Nil) {
			return fmt.Errorf("failed to read active session: %w", err)
		}

		next := *session
		next.Revision++
		next.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
		score := float64(time.Now().Add(s.ttl).Unix())
		if s.ttl == 0 {
			score = 4102444800 // 2100-01-01
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.ID})
			switch {
			case !session.Status.Terminal():
				pipe.Set(ctx, active, session.ID, s.ttl)
			case owner == session.ID:
				pipe.Del(ctx, active)
			}
			return nil
		})
		if err != nil {
			return err
		}
		session.Revision = next.Revision
		session.UpdatedAt = next.UpdatedAt
		return nil
	}

	err := s.client.Watch(ctx, txf, key, active)
	if errors.Is(err, backend.TxFailedErr) {
		return fmt.Errorf("%w: concurrent write", domain.ErrRevisionConflict)
	}
	if err != nil {
		if errors.Is(err, domain.ErrRevisionConflict) {
			return err
		}
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *Store) storedRevision(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session: %w", err)
	}
	var prev struct {
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(raw, &prev); err != nil {
		return 0, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return prev.Revision, nil
}

// Load retrieves the session from Redis.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// FindActive follows the per-conversation pointer to the non-terminal session.
func (s *Store) FindActive(ctx context.Context, conversationID string) (*domain.Session, error) {
	id, err := s.client.Get(ctx, s.activeKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	session, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session and its active pointer.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if session != nil {
		compareAndDelete.Eval(ctx, pipe, []string{s.activeKey(session.ConversationID)}, sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns stored sessions, pruning index entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
