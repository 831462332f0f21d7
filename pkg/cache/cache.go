package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get when no entry exists for the key.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt is returned by Get when an entry exists but cannot be decoded.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Entry is the persisted safety record of one target.
// JSON names match the files written by earlier versions of the bot.
type Entry struct {
	LastAttack  int64 `json:"last_attack"`
	Safe        bool  `json:"safe"`
	Scouted     bool  `json:"scout"`
	HighProfile bool  `json:"high_profile"`
	LowProfile  bool  `json:"low_profile"`
}

// LastAttackTime returns LastAttack as a time.
func (e Entry) LastAttackTime() time.Time {
	return time.Unix(e.LastAttack, 0)
}

// Age returns how long ago the target was last engaged.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastAttackTime())
}

// Store is a durable key-value mapping from target id to Entry.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, e Entry) error
	// List returns every readable entry whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string]Entry, error)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty cache key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}
