// Package redis provides a Redis-backed login attempt ledger for deployments
// where several authgate instances share throttling state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
)

// Config selects the Redis server backing the ledger. An empty Addr disables
// the Redis ledger.
type Config struct {
	Addr      string        `env:"AUTHGATE_REDIS_ADDR"`
	Password  string        `env:"AUTHGATE_REDIS_PASSWORD"`
	DB        int           `env:"AUTHGATE_REDIS_DB" envDefault:"0"`
	KeyPrefix string        `env:"AUTHGATE_REDIS_KEY_PREFIX" envDefault:"authgate"`
	Retention time.Duration `env:"AUTHGATE_REDIS_RETENTION" envDefault:"720h"`
	// SuccessRetention bounds how long a user's last successful login is
	// kept. A missed-ban notice is only possible for users who logged in
	// within this window.
	SuccessRetention time.Duration `env:"AUTHGATE_REDIS_SUCCESS_RETENTION" envDefault:"8760h"`
}

// successKeep is how many successful logins are kept per user. Only the newest
// one before the current attempt is ever read.
const successKeep = 8

// Validate checks that failed attempts outlive the throttle window, otherwise
// trimming would hide failures the throttle policy still needs to count.
func (c Config) Validate(window time.Duration) error {
	if c.Retention > 0 && c.Retention < window {
		return fmt.Errorf("redis retention %s is shorter than the throttle window %s", c.Retention, window)
	}
	if c.SuccessRetention > 0 && c.SuccessRetention < c.Retention {
		return fmt.Errorf("redis success retention %s is shorter than retention %s", c.SuccessRetention, c.Retention)
	}
	return nil
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Ledger stores attempts in sorted sets scored by attempt time in
// milliseconds.
//
// Failed attempts live under <prefix>:ip:<ip>:failed and successful logins
// under <prefix>:user:<id>:success. Members carry a random id so identical
// attempts never collapse into one entry.
type Ledger struct {
	client           goredis.UniversalClient
	prefix           string
	retention        time.Duration
	successRetention time.Duration
}

type failedMember struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// NewLedger builds a ledger over client.
func NewLedger(client goredis.UniversalClient, cfg Config) *Ledger {
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "authgate"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	successRetention := cfg.SuccessRetention
	if successRetention <= 0 {
		successRetention = 365 * 24 * time.Hour
	}
	if successRetention < retention {
		successRetention = retention
	}
	return &Ledger{client: client, prefix: prefix, retention: retention, successRetention: successRetention}
}

func (l *Ledger) failedKey(ip string) string {
	return l.prefix + ":ip:" + ip + ":failed"
}

func (l *Ledger) successKey(userID string) string {
	return l.prefix + ":user:" + userID + ":success"
}

// Record appends one attempt. Failed attempts older than the retention are
// trimmed; successful logins keep only the newest few per user and expire
// after the success retention.
func (l *Ledger) Record(ctx context.Context, a attempt.Attempt) error {
	if strings.TrimSpace(a.IP) == "" {
		return errors.New("attempt ip is required")
	}
	at := a.AttemptedAt.UTC().UnixMilli()
	memberID := uuid.NewString()

	if a.Success {
		if a.UserID == "" {
			return errors.New("successful attempt requires a user id")
		}
		key := l.successKey(a.UserID)
		_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZAdd(ctx, key, goredis.Z{Score: float64(at), Member: memberID})
			pipe.ZRemRangeByRank(ctx, key, 0, -(successKeep + 1))
			pipe.Expire(ctx, key, l.successRetention)
			return nil
		})
		if err != nil {
			return fmt.Errorf("record successful login: %w", err)
		}
		return nil
	}

	member := failedMember{ID: memberID, UserID: a.UserID}
	if a.UserID == "" {
		member.Identifier = attempt.TruncateIdentifier(a.Identifier)
	}
	payload, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	key := l.failedKey(a.IP)
	cutoff := strconv.FormatInt(at-l.retention.Milliseconds(), 10)
	_, err = l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(at), Member: string(payload)})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
		pipe.Expire(ctx, key, l.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return nil
}

// FailedAttemptsSince aggregates failures from ip with one range read.
func (l *Ledger) FailedAttemptsSince(ctx context.Context, ip string, since time.Time) (attempt.Snapshot, error) {
	entries, err := l.client.ZRangeByScoreWithScores(ctx, l.failedKey(ip), &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UTC().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return attempt.Snapshot{}, fmt.Errorf("read failed attempts: %w", err)
	}

	var snapshot attempt.Snapshot
	users := make(map[string]struct{})
	for i, entry := range entries {
		raw, ok := entry.Member.(string)
		if !ok {
			return attempt.Snapshot{}, fmt.Errorf("unexpected member type %T", entry.Member)
		}
		var member failedMember
		if err := json.Unmarshal([]byte(raw), &member); err != nil {
			return attempt.Snapshot{}, fmt.Errorf("decode attempt: %w", err)
		}
		if member.UserID != "" {
			users[member.UserID] = struct{}{}
		}
		at := time.UnixMilli(int64(entry.Score)).UTC()
		// Entries are ordered by score.
		if i == 0 {
			snapshot.FirstAttemptAt = at
		}
		snapshot.LastAttemptAt = at
	}
	snapshot.TotalFailedAttempts = len(entries)
	snapshot.DistinctAccountsAffected = len(users)
	return snapshot, nil
}

// LastSuccessfulLogin returns the newest success for userID before before.
func (l *Ledger) LastSuccessfulLogin(ctx context.Context, userID string, before time.Time) (time.Time, bool, error) {
	entries, err := l.client.ZRevRangeByScoreWithScores(ctx, l.successKey(userID), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UTC().UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read successful logins: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(entries[0].Score)).UTC(), true, nil
}
