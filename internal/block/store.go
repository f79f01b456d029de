// Package block manages user-level blocks and escalating temporary bans,
// backed by Redis:
//
//	Key:   blocks:<userID>     (set of blocked user ids, no expiry)
//	Key:   ban:<userID>        (value: reason, TTL: ban duration)
//	Key:   offenses:<userID>   (offense counter, 24h TTL)
//
// Blocked pairs are never proposed to each other by the matcher.
package block

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blocksPrefix   = "blocks:"
	banPrefix      = "ban:"
	offensesPrefix = "offenses:"

	// Escalating ban durations.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// OffensesTTL is how long the offense counter lives. After 24h without
	// new offenses the counter resets to zero.
	OffensesTTL = 24 * time.Hour

	// AutoBanThreshold is the number of reports within OffensesTTL that
	// triggers an automatic ban.
	AutoBanThreshold = 3
)

// Store manages block and ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a block store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Block adds blockedID to userID's block set.
func (s *Store) Block(ctx context.Context, userID, blockedID string) error {
	return s.client.SAdd(ctx, blocksPrefix+userID, blockedID).Err()
}

// Unblock removes blockedID from userID's block set.
func (s *Store) Unblock(ctx context.Context, userID, blockedID string) error {
	return s.client.SRem(ctx, blocksPrefix+userID, blockedID).Err()
}

// Blocked reports whether either user has blocked the other. Redis errors
// fail open: an outage must not stop all matching.
func (s *Store) Blocked(a, b string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if yes, err := s.client.SIsMember(ctx, blocksPrefix+a, b).Result(); err == nil && yes {
		return true
	}
	if yes, err := s.client.SIsMember(ctx, blocksPrefix+b, a).Result(); err == nil && yes {
		return true
	}
	return false
}

// IsBanned checks if a user is currently banned.
// Returns (isBanned, remainingSeconds, reason, error). Redis errors are
// returned so callers can decide how to handle them; the recommended policy
// is fail-open.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, int, string, error) {
	key := banPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The ban exists but the TTL is unreadable. Report banned with 0
		// remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Ban sets a ban on a user with the given duration and reason. The ban
// expires on its own.
func (s *Store) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, banPrefix+userID, reason, duration).Err()
}

// Unban lifts a user's ban immediately.
func (s *Store) Unban(ctx context.Context, userID string) error {
	return s.client.Del(ctx, banPrefix+userID).Err()
}

// escalationDuration returns the ban duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Ban15Min
	case offenseCount == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}

// OffenseCount returns the current offense counter for a user. Returns 0 if
// the key does not exist (no offenses recorded or counter expired).
func (s *Store) OffenseCount(ctx context.Context, userID string) (int, error) {
	val, err := s.client.Get(ctx, offensesPrefix+userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Escalate increments the offense counter for a user and applies a ban whose
// duration escalates with the number of offenses:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// Returns the ban duration that was applied.
func (s *Store) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	key := offensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("block: escalate incr: %w", err)
	}
	// Set TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return 0, fmt.Errorf("block: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Ban(ctx, userID, duration, reason); err != nil {
		return 0, fmt.Errorf("block: escalate ban: %w", err)
	}
	return duration, nil
}

// ReportAndCheck increments the report counter for a user and, once the
// auto-ban threshold (3 reports in 24h) is reached, applies a ban with
// escalating duration. Returns (banned, duration, error).
func (s *Store) ReportAndCheck(ctx context.Context, userID string) (bool, time.Duration, error) {
	key := offensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("block: report incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return false, 0, fmt.Errorf("block: report expire: %w", err)
		}
	}

	if count >= AutoBanThreshold {
		duration := escalationDuration(int(count))
		if err := s.Ban(ctx, userID, duration, "multiple_reports"); err != nil {
			return false, 0, fmt.Errorf("block: report ban: %w", err)
		}
		return true, duration, nil
	}
	return false, 0, nil
}
