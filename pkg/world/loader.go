package world

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// ParseVillages reads a world dump. The dump is either an array of villages or
// an object keyed by village id, optionally nested under "villages":
//
//	{"villages": {"1234": {"name": "...", "location": [500, 501], "owner": "0",
//	  "points": 112, "tribe": null, "bonus": null}}}
func ParseVillages(body string) ([]Target, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("world dump is not valid JSON")
	}
	root := gjson.Parse(body)
	if v := root.Get("villages"); v.Exists() {
		root = v
	}
	if !root.IsArray() && !root.IsObject() {
		return nil, fmt.Errorf("world dump has no village list")
	}

	var out []Target
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		id := value.Get("id").String()
		if id == "" && root.IsObject() {
			id = key.String()
		}
		if id == "" {
			parseErr = fmt.Errorf("village without id in world dump")
			return false
		}
		t := Target{
			ID:     id,
			Name:   value.Get("name").String(),
			Owner:  value.Get("owner").String(),
			Points: int(value.Get("points").Int()),
			Tribe:  value.Get("tribe").String(),
			Bonus:  value.Get("bonus").String(),
		}
		if t.Tribe == "0" {
			t.Tribe = ""
		}
		loc := value.Get("location")
		if loc.IsArray() {
			xy := loc.Array()
			if len(xy) == 2 {
				t.Location = Coord{X: int(xy[0].Int()), Y: int(xy[1].Int())}
			}
		} else {
			t.Location = Coord{X: int(value.Get("x").Int()), Y: int(value.Get("y").Int())}
		}
		out = append(out, t)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// FileProvider serves snapshots from a world dump on disk. The file is re-read
// on every call so an external map fetcher can refresh it between cycles.
type FileProvider struct {
	Path string
}

func (p FileProvider) Snapshot(ctx context.Context, homeID string) (*Snapshot, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("reading world dump: %w", err)
	}
	villages, err := ParseVillages(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing world dump %s: %w", p.Path, err)
	}
	for _, v := range villages {
		if v.ID == homeID {
			return NewSnapshot(v, villages), nil
		}
	}
	return nil, fmt.Errorf("home village %s not found in world dump %s", homeID, p.Path)
}
