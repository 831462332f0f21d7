package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tribalfarm/tfarm/pkg/cache"
)

// Get reads one cache entry. Entries whose payload fails validation are
// reported as cache.ErrCorrupt.
func (d *DB) Get(ctx context.Context, key string) (cache.Entry, error) {
	var data string
	err := d.sql.QueryRowContext(ctx, "SELECT data FROM attack_cache WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Entry{}, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	return cache.DecodeEntry([]byte(data))
}

// Put writes one cache entry, replacing any previous one.
func (d *DB) Put(ctx context.Context, key string, e cache.Entry) error {
	if key == "" {
		return errors.New("empty cache key")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO attack_cache(key, data, last_attack, updated_at) VALUES(?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET data = excluded.data, last_attack = excluded.last_attack, updated_at = CURRENT_TIMESTAMP`, key, string(raw), e.LastAttack)
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// List returns every decodable entry whose key starts with prefix.
func (d *DB) List(ctx context.Context, prefix string) (map[string]cache.Entry, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT key, data FROM attack_cache WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]cache.Entry)
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		e, err := cache.DecodeEntry([]byte(data))
		if err != nil {
			continue
		}
		out[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
