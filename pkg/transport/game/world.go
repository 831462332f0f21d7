package game

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tribalfarm/tfarm/pkg/world"
)

// DefaultMapTTL is how long a downloaded world map is reused. The game
// regenerates the files hourly.
const DefaultMapTTL = time.Hour

// Map is a world.Provider backed by the public map files of the world
// (map/village.txt and map/player.txt).
type Map struct {
	c   *Client
	TTL time.Duration

	mu      sync.Mutex
	fetched time.Time
	targets []world.Target
	now     func() time.Time
}

// Map returns a world.Provider for the client's world.
func (c *Client) Map() *Map {
	return &Map{c: c, TTL: DefaultMapTTL, now: time.Now}
}

var _ world.Provider = (*Map)(nil)

func (m *Map) Snapshot(ctx context.Context, homeID string) (*world.Snapshot, error) {
	targets, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.ID == homeID {
			return world.NewSnapshot(t, targets), nil
		}
	}
	return nil, fmt.Errorf("home village %s not found on the world map", homeID)
}

func (m *Map) load(ctx context.Context) ([]world.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.targets != nil && m.now().Sub(m.fetched) < m.TTL {
		return m.targets, nil
	}

	players, err := m.fetch(ctx, "map/player.txt")
	if err != nil {
		return nil, err
	}
	tribes, err := ParsePlayers(players)
	if err != nil {
		return nil, err
	}
	villages, err := m.fetch(ctx, "map/village.txt")
	if err != nil {
		return nil, err
	}
	targets, err := ParseVillages(villages, tribes)
	if err != nil {
		return nil, err
	}
	m.c.log.Debugf("World map loaded: %d villages, %d players", len(targets), len(tribes))
	m.targets = targets
	m.fetched = m.now()
	return targets, nil
}

func (m *Map) fetch(ctx context.Context, path string) (io.Reader, error) {
	res, _, err := m.c.do(ctx, http.MethodGet, m.c.url(path, nil), nil, modeRaw)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", path, res.StatusCode)
	}
	return strings.NewReader(res.BodyString), nil
}

// ParsePlayers reads player.txt (id,name,tribe,villages,points,rank) and
// returns the tribe id of every player in a tribe.
func ParsePlayers(r io.Reader) (map[string]string, error) {
	rows, err := readRows(r, 3)
	if err != nil {
		return nil, fmt.Errorf("player.txt: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if tribe := row[2]; tribe != "" && tribe != "0" {
			out[row[0]] = tribe
		}
	}
	return out, nil
}

// ParseVillages reads village.txt (id,name,x,y,player,points,rank). Names
// are URL-encoded in the file.
func ParseVillages(r io.Reader, tribes map[string]string) ([]world.Target, error) {
	rows, err := readRows(r, 6)
	if err != nil {
		return nil, fmt.Errorf("village.txt: %w", err)
	}
	out := make([]world.Target, 0, len(rows))
	for i, row := range rows {
		x, errX := strconv.Atoi(row[2])
		y, errY := strconv.Atoi(row[3])
		points, errP := strconv.Atoi(row[5])
		if errX != nil || errY != nil || errP != nil {
			return nil, fmt.Errorf("village.txt line %d: bad number", i+1)
		}
		name, err := url.QueryUnescape(row[1])
		if err != nil {
			name = row[1]
		}
		owner := row[4]
		if owner == "0" {
			owner = ""
		}
		out = append(out, world.Target{
			ID:       row[0],
			Name:     name,
			Location: world.Coord{X: x, Y: y},
			Owner:    owner,
			Points:   points,
			Tribe:    tribes[owner],
		})
	}
	return out, nil
}

func readRows(r io.Reader, minFields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) < minFields {
			return nil, fmt.Errorf("line %d has %d fields, want %d", i+1, len(row), minFields)
		}
	}
	return rows, nil
}
