package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const entrySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["last_attack", "scout", "safe"],
  "properties": {
    "last_attack": {"type": "integer", "minimum": 0},
    "scout": {"type": "boolean"},
    "safe": {"type": "boolean"},
    "high_profile": {"type": "boolean"},
    "low_profile": {"type": "boolean"}
  }
}`

var entryValidator = jsonschema.MustCompileString("attack_cache_entry.json", entrySchema)

// Dir is a Store keeping one JSON file per target, the layout of the
// cache/attacks directory written by earlier versions of the bot.
type Dir struct {
	path string
}

// OpenDir opens (and creates if needed) a directory store.
func OpenDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) file(key string) string {
	return filepath.Join(d.path, key+".json")
}

func (d *Dir) Get(ctx context.Context, key string) (Entry, error) {
	if err := validateKey(key); err != nil {
		return Entry{}, err
	}
	raw, err := os.ReadFile(d.file(key))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return DecodeEntry(raw)
}

func (d *Dir) Put(ctx context.Context, key string, e Entry) error {
	if err := validateKey(key); err != nil {
		return err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.path, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), d.file(key))
}

// List skips entries that fail validation; they read as absent.
func (d *Dir) List(ctx context.Context, prefix string) (map[string]Entry, error) {
	files, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry)
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e, err := d.Get(ctx, key)
		if errors.Is(err, ErrCorrupt) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = e
	}
	return out, nil
}

// DecodeEntry validates and decodes a serialized entry.
func DecodeEntry(raw []byte) (Entry, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := entryValidator.Validate(doc); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return e, nil
}
