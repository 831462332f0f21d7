package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const sample = `
server:
  endpoint: https://nl12.tribalwars.nl/
  cookie: sid=0:abcdefghijkl
  timezone: UTC
bot:
  active_hours: 22-6
  active_delay: 60
farms:
  max_farms: 10
  min_points: 30
  max_points: 0
  forced_peace_times:
    - start: 24.12.24 20:00:00
      end: 26.12.24 08:00:00
  priority_rules:
    - HasReport && LootTotal > 5000
villages:
  "12345":
    managed: true
    additional_farms: ["777"]
    farm_templates:
      - light: 5
      - spear: 20
        sword: 10
  "999":
    managed: false
`

func load(t *testing.T, body string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(body)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	return Load(v)
}

func TestLoad(t *testing.T) {
	c, err := load(t, sample)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.ManagedVillages(); len(got) != 1 || got[0] != "12345" {
		t.Fatalf("managed villages %v", got)
	}

	b := c.Bounds("12345")
	if b.MinPoints != 30 || b.MaxPoints != 0 || b.Radius != 50 || len(b.ExtraFarm) != 1 || b.ExtraFarm[0] != "777" {
		t.Fatalf("bounds %+v", b)
	}
	if len(b.QuietHours) != 9 {
		t.Fatalf("quiet hours default not applied: %v", b.QuietHours)
	}

	cd := c.Cooldown()
	if cd.Default != 1200*time.Second || cd.High != 1800*time.Second || cd.Low != 7200*time.Second {
		t.Fatalf("cooldown %+v", cd)
	}
	if s := c.Safety(); !s.AllowBlind || s.LowWait != 7200*time.Second {
		t.Fatalf("safety %+v", s)
	}

	ec, err := c.Engine("12345")
	if err != nil {
		t.Fatal(err)
	}
	if ec.MaxFarms != 10 || !ec.ScoutEnabled || ec.ScoutUnit != "spy" || ec.ScoutSize != 5 {
		t.Fatalf("engine config %+v", ec)
	}
	if len(ec.Templates) != 2 || ec.Templates[0]["light"] != 5 || ec.Templates[1]["sword"] != 10 {
		t.Fatalf("templates %v", ec.Templates)
	}
	if len(ec.ForcedPeace) != 1 {
		t.Fatalf("peace windows %v", ec.ForcedPeace)
	}
	want := time.Date(2024, 12, 24, 20, 0, 0, 0, time.UTC)
	if !ec.ForcedPeace[0].Start.Equal(want) {
		t.Fatalf("peace start %s, want %s", ec.ForcedPeace[0].Start, want)
	}

	s, err := c.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	if s.StartHour != 22 || s.EndHour != 6 || s.ActiveDelay != time.Minute || s.InactiveDelay != 10*time.Minute {
		t.Fatalf("schedule %+v", s)
	}
	if c.RequestDelay() != time.Second {
		t.Fatalf("request delay %s", c.RequestDelay())
	}
	if len(c.Farms.PriorityRules) != 1 {
		t.Fatalf("rules %v", c.Farms.PriorityRules)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad hours", "bot:\n  active_hours: morning\n", "bot.active_hours"},
		{"inverted points", "farms:\n  min_points: 500\n  max_points: 100\n", "min_points"},
		{"quiet hour", "farms:\n  quiet_hours: [25]\n", "quiet_hours"},
		{"peace layout", "farms:\n  forced_peace_times:\n    - start: tomorrow\n      end: later\n", "forced_peace_times[0]"},
		{"endpoint", "server:\n  endpoint: https://localhost/\n", "server.endpoint"},
		{"timezone", "server:\n  timezone: Mars/Olympus\n", "server.timezone"},
		{"template", "villages:\n  \"1\":\n    farm_templates:\n      - light: -1\n", "farm_templates[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.body)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRenderMasksCookie(t *testing.T) {
	c, err := load(t, sample)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "abcdefghijkl") {
		t.Fatalf("cookie leaked:\n%s", out)
	}
	for _, want := range []string{"endpoint: https://nl12.tribalwars.nl/", "cookie: sid=*", "active_hours: 22-6", "light: 5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered config misses %q:\n%s", want, out)
		}
	}
	if c.Server.Cookie != "sid=0:abcdefghijkl" {
		t.Fatal("Render modified the config")
	}
}
