// Package config holds the typed configuration of a farm instance, decoded
// from viper.
package config

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tribalfarm/tfarm/pkg/cooldown"
	"github.com/tribalfarm/tfarm/pkg/discovery"
	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/safety"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

type Config struct {
	Server   Server             `mapstructure:"server" yaml:"server"`
	Bot      Bot                `mapstructure:"bot" yaml:"bot"`
	Farms    Farms              `mapstructure:"farms" yaml:"farms"`
	Villages map[string]Village `mapstructure:"villages" yaml:"villages"`
	Storage  Storage            `mapstructure:"storage" yaml:"storage"`
}

type Server struct {
	// Endpoint is the world URL, e.g. https://nl12.tribalwars.nl/
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Cookie   string `mapstructure:"cookie" yaml:"cookie"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

type Bot struct {
	ActiveHours         string  `mapstructure:"active_hours" yaml:"active_hours"`
	ActiveDelay         int     `mapstructure:"active_delay" yaml:"active_delay"`
	InactiveDelay       int     `mapstructure:"inactive_delay" yaml:"inactive_delay"`
	InactiveStillActive bool    `mapstructure:"inactive_still_active" yaml:"inactive_still_active"`
	UserAgent           string  `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy               string  `mapstructure:"proxy" yaml:"proxy"`
	Delay               float64 `mapstructure:"delay" yaml:"delay"`
	RetryMax            int     `mapstructure:"retry_max" yaml:"retry_max"`
	// Seed fixes the order of maintenance tasks. Zero picks a random seed.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

type PeaceTime struct {
	Start string `mapstructure:"start" yaml:"start"`
	End   string `mapstructure:"end" yaml:"end"`
}

type Farms struct {
	Farm               bool        `mapstructure:"farm" yaml:"farm"`
	MaxFarms           int         `mapstructure:"max_farms" yaml:"max_farms"`
	MinPoints          int         `mapstructure:"min_points" yaml:"min_points"`
	MaxPoints          int         `mapstructure:"max_points" yaml:"max_points"`
	Radius             float64     `mapstructure:"radius" yaml:"radius"`
	AttackHigherPoints bool        `mapstructure:"attack_higher_points" yaml:"attack_higher_points"`
	QuietHours         []int       `mapstructure:"quiet_hours" yaml:"quiet_hours"`
	DefaultAwayTime    int         `mapstructure:"default_away_time" yaml:"default_away_time"`
	FullLootAwayTime   int         `mapstructure:"full_loot_away_time" yaml:"full_loot_away_time"`
	LowLootAwayTime    int         `mapstructure:"low_loot_away_time" yaml:"low_loot_away_time"`
	ForceScout         bool        `mapstructure:"force_scout_if_available" yaml:"force_scout_if_available"`
	ScoutUnit          string      `mapstructure:"scout_unit" yaml:"scout_unit"`
	ScoutSize          int         `mapstructure:"scout_size" yaml:"scout_size"`
	AllowBlind         bool        `mapstructure:"allow_blind" yaml:"allow_blind"`
	PriorityLoot       int         `mapstructure:"priority_loot" yaml:"priority_loot"`
	PriorityRules      []string    `mapstructure:"priority_rules" yaml:"priority_rules"`
	ForcedPeaceTimes   []PeaceTime `mapstructure:"forced_peace_times" yaml:"forced_peace_times"`
}

type Village struct {
	Managed         bool                 `mapstructure:"managed" yaml:"managed"`
	AdditionalFarms []string             `mapstructure:"additional_farms" yaml:"additional_farms"`
	FarmTemplates   []troops.Composition `mapstructure:"farm_templates" yaml:"farm_templates"`
}

type Storage struct {
	Database    string `mapstructure:"database" yaml:"database"`
	Journal     string `mapstructure:"journal" yaml:"journal"`
	LegacyCache string `mapstructure:"legacy_cache" yaml:"legacy_cache"`
}

// SetDefaults seeds v with the defaults of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.endpoint", "")
	v.SetDefault("server.cookie", "")
	v.SetDefault("server.timezone", "Local")

	v.SetDefault("bot.active_hours", "6-23")
	v.SetDefault("bot.active_delay", 120)
	v.SetDefault("bot.inactive_delay", 600)
	v.SetDefault("bot.inactive_still_active", false)
	v.SetDefault("bot.user_agent", "")
	v.SetDefault("bot.proxy", "")
	v.SetDefault("bot.delay", 1.0)
	v.SetDefault("bot.retry_max", 2)
	v.SetDefault("bot.seed", 0)

	v.SetDefault("farms.farm", true)
	v.SetDefault("farms.max_farms", engine.DefaultMaxFarms)
	v.SetDefault("farms.min_points", 24)
	v.SetDefault("farms.max_points", 1080)
	v.SetDefault("farms.radius", 50)
	v.SetDefault("farms.attack_higher_points", false)
	v.SetDefault("farms.quiet_hours", discovery.DefaultQuietHours)
	v.SetDefault("farms.default_away_time", int(cooldown.DefaultInterval/time.Second))
	v.SetDefault("farms.full_loot_away_time", int(cooldown.DefaultHighInterval/time.Second))
	v.SetDefault("farms.low_loot_away_time", int(cooldown.DefaultLowInterval/time.Second))
	v.SetDefault("farms.force_scout_if_available", true)
	v.SetDefault("farms.scout_unit", engine.DefaultScoutUnit)
	v.SetDefault("farms.scout_size", engine.DefaultScoutSize)
	v.SetDefault("farms.allow_blind", true)
	v.SetDefault("farms.priority_loot", 1000)
	v.SetDefault("farms.priority_rules", []string{})
	v.SetDefault("farms.forced_peace_times", []map[string]string{})

	v.SetDefault("storage.database", "tfarm.db")
	v.SetDefault("storage.journal", "journal")
	v.SetDefault("storage.legacy_cache", "cache/attacks")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Server.Endpoint != "" {
		if _, err := world.ParseServer(c.Server.Endpoint); err != nil {
			return fmt.Errorf("server.endpoint: %w", err)
		}
	}
	if _, _, err := engine.ParseActiveHours(c.Bot.ActiveHours); err != nil {
		return fmt.Errorf("bot.active_hours: %w", err)
	}
	if c.Farms.MinPoints < 0 || c.Farms.MaxPoints < 0 {
		return fmt.Errorf("farms: point bounds must not be negative")
	}
	if c.Farms.MaxPoints > 0 && c.Farms.MinPoints > c.Farms.MaxPoints {
		return fmt.Errorf("farms: min_points %d above max_points %d", c.Farms.MinPoints, c.Farms.MaxPoints)
	}
	for _, h := range c.Farms.QuietHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("farms.quiet_hours: %d is not an hour", h)
		}
	}
	if _, err := c.PeaceWindows(); err != nil {
		return err
	}
	for id, v := range c.Villages {
		for i, t := range v.FarmTemplates {
			for unit, n := range t {
				if n < 0 {
					return fmt.Errorf("villages.%s.farm_templates[%d]: negative count for %s", id, i, unit)
				}
			}
		}
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" || c.Server.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("server.timezone: %w", err)
	}
	return loc, nil
}

// PeaceWindows parses farms.forced_peace_times in the server timezone.
func (c *Config) PeaceWindows() ([]engine.PeaceWindow, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	out := make([]engine.PeaceWindow, 0, len(c.Farms.ForcedPeaceTimes))
	for i, p := range c.Farms.ForcedPeaceTimes {
		w, err := engine.ParsePeaceWindow(p.Start, p.End, loc)
		if err != nil {
			return nil, fmt.Errorf("farms.forced_peace_times[%d]: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// ManagedVillages returns the ids of managed villages, sorted.
func (c *Config) ManagedVillages() []string {
	var ids []string
	for id, v := range c.Villages {
		if v.Managed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Config) Bounds(village string) discovery.Bounds {
	return discovery.Bounds{
		MinPoints:          c.Farms.MinPoints,
		MaxPoints:          c.Farms.MaxPoints,
		Radius:             c.Farms.Radius,
		AttackHigherPoints: c.Farms.AttackHigherPoints,
		ExtraFarm:          c.Villages[village].AdditionalFarms,
		QuietHours:         c.Farms.QuietHours,
	}
}

func (c *Config) Cooldown() cooldown.Config {
	return cooldown.Config{
		Default: seconds(c.Farms.DefaultAwayTime),
		High:    seconds(c.Farms.FullLootAwayTime),
		Low:     seconds(c.Farms.LowLootAwayTime),
	}
}

func (c *Config) Safety() safety.Config {
	s := safety.DefaultConfig()
	s.AllowBlind = c.Farms.AllowBlind
	s.LowWait = seconds(c.Farms.LowLootAwayTime)
	return s
}

// Engine builds the orchestrator settings for one home village.
func (c *Config) Engine(village string) (engine.Config, error) {
	peace, err := c.PeaceWindows()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		MaxFarms:     c.Farms.MaxFarms,
		Templates:    c.Villages[village].FarmTemplates,
		ScoutUnit:    c.Farms.ScoutUnit,
		ScoutSize:    c.Farms.ScoutSize,
		ScoutEnabled: c.Farms.ForceScout,
		ForcedPeace:  peace,
	}, nil
}

func (c *Config) Schedule() (engine.Schedule, error) {
	start, end, err := engine.ParseActiveHours(c.Bot.ActiveHours)
	if err != nil {
		return engine.Schedule{}, err
	}
	return engine.Schedule{
		StartHour:           start,
		EndHour:             end,
		ActiveDelay:         seconds(c.Bot.ActiveDelay),
		InactiveDelay:       seconds(c.Bot.InactiveDelay),
		InactiveStillActive: c.Bot.InactiveStillActive,
	}, nil
}

// RequestDelay is bot.delay as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Bot.Delay * float64(time.Second))
}

// Render writes the configuration as YAML with the session cookie masked.
func (c *Config) Render(w io.Writer) error {
	out := *c
	if out.Server.Cookie != "" {
		out.Server.Cookie = mask(out.Server.Cookie)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return err
	}
	return enc.Close()
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
