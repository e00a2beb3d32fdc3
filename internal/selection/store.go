package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists per-session selection sets in Redis. Every mutation renews
// the TTL so an active operator never loses a selection mid-shift, while
// abandoned sessions expire on their own.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(session string) string {
	return "velora:selection:" + session
}

// Load returns the current set for a session. A missing key is an empty set.
func (s *Store) Load(ctx context.Context, session string) (*Set, error) {
	ids, err := s.client.SMembers(ctx, s.key(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("selection: load %s: %w", session, err)
	}
	return NewSet(ids...), nil
}

// Toggle flips one id and reports whether it is now selected.
func (s *Store) Toggle(ctx context.Context, session, id string) (bool, error) {
	key := s.key(session)
	added, err := s.client.SAdd(ctx, key, id).Result()
	if err != nil {
		return false, fmt.Errorf("selection: toggle %s: %w", session, err)
	}
	if added == 0 {
		if err := s.client.SRem(ctx, key, id).Err(); err != nil {
			return false, fmt.Errorf("selection: toggle %s: %w", session, err)
		}
		s.touch(ctx, key)
		return false, nil
	}
	s.touch(ctx, key)
	return true, nil
}

// Replace swaps the whole set atomically, used by the select-all toggle.
func (s *Store) Replace(ctx context.Context, session string, ids []string) error {
	key := s.key(session)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(ids) > 0 {
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("selection: replace %s: %w", session, err)
	}
	return nil
}

// Clear empties the session's set.
func (s *Store) Clear(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("selection: clear %s: %w", session, err)
	}
	return nil
}

// Prune intersects the stored set with the refreshed visible listing and
// returns the surviving set.
func (s *Store) Prune(ctx context.Context, session string, visible []string) (*Set, error) {
	set, err := s.Load(ctx, session)
	if err != nil {
		return nil, err
	}
	set.Prune(visible)
	if err := s.Replace(ctx, session, set.IDs()); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Store) touch(ctx context.Context, key string) {
	_ = s.client.Expire(ctx, key, s.ttl).Err()
}
