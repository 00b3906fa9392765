package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Store persists flow sessions as JSON in Redis with a sliding TTL. The
// flow is single-shopper and user-paced, so a plain key per session is
// enough; the submit lock below is the only cross-request coordination.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

// NewStore constructs a session store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{R: client, TTL: ttl, Prefix: "splitcheckout:flow:"}
}

func (s *Store) key(id string) string {
	return s.Prefix + id
}

func (s *Store) lockKey(id string) string {
	return s.Prefix + "lock:" + id
}

// Save serialises the state under the session id and refreshes the TTL.
func (s *Store) Save(ctx context.Context, id string, state any) error {
	if s == nil || s.R == nil {
		return errors.New("session: store not configured")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	return s.R.Set(ctx, s.key(id), data, s.TTL).Err()
}

// Load reads the state stored under the session id.
func (s *Store) Load(ctx context.Context, id string, state any) error {
	if s == nil || s.R == nil {
		return errors.New("session: store not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("session: decode state: %w", err)
	}
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, s.key(id)).Err()
}

// AcquireSubmitLock takes a short-lived exclusive lock for the session's
// submission. It reports false when a submission is already in flight,
// which turns a re-entrant submit into a clean rejection instead of a
// duplicated mutation sequence against the backend.
func (s *Store) AcquireSubmitLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if s == nil || s.R == nil {
		return false, errors.New("session: store not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return s.R.SetNX(ctx, s.lockKey(id), "1", ttl).Result()
}

// ReleaseSubmitLock frees the submission lock.
func (s *Store) ReleaseSubmitLock(ctx context.Context, id string) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, s.lockKey(id)).Err()
}
