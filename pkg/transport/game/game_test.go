package game

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

const placePage = `<html><head><meta name="csrf-token" content="csrf-1"><title>Rally point</title></head><body>
<a href="/game.php?village=100&amp;screen=overview&amp;h=deadbeef">Overview</a>
<form id="command-data-form" action="/game.php?village=100&amp;screen=place&amp;try=confirm" method="post">
<input type="hidden" name="ch4ff3" value="x1">
<input type="hidden" name="template_id" value="">
<input name="spear" data-all-count="120" value="">
<input name="light" data-all-count="40" value="">
<input name="spy" data-all-count="9" value="">
<input name="x" value=""><input name="y" value="">
<input type="checkbox" name="keep" value="1">
<input type="submit" name="attack" value="Attack">
<input type="submit" name="support" value="Support">
</form></body></html>`

const confirmPage = `<html><head><meta name="csrf-token" content="csrf-2"></head><body>
<form id="command-data-form">
<input type="hidden" name="attack" value="true">
<input type="hidden" name="ch" value="c0nf">
<input type="hidden" name="x" value="501">
<input type="hidden" name="source_village" value="100">
<input type="hidden" name="spear" value="0">
<input type="hidden" name="light" value="5">
<input type="submit" name="support" value="Support">
</form>
<table><tr><td>Duration:</td><td><span class="relative_time" data-duration="3600">1:00:00</span></td></tr></table>
</body></html>`

const overviewPage = `<html><body>
<script>TribalWars.updateGameData({"player":{"id":"7","incomings":"2"},"village":{"id":100,"wood":400000,"stone":400000,"iron":400000,"storage_max":400000,"points":3210}});</script>
<div id="show_units"><table>
<tr><td><a href="#" data-unit="spear"><strong>150</strong> Spear fighters</a></td></tr>
<tr><td><a href="#" data-unit="light"><strong>1.040</strong> Light cavalry</a></td></tr>
</table></div></body></html>`

type gameServer struct {
	mu          sync.Mutex
	confirmBody string
	popupBody   string
	popupHdr    http.Header
	popupReply  string
	refuse      bool
	page        string
	popups      int
}

func (g *gameServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/game.php", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		q := r.URL.Query()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch {
		case q.Get("target") == "expired":
			http.Redirect(w, r, "/index.php", http.StatusFound)
		case q.Get("screen") == "captcha":
			io.WriteString(w, `<html><body><div data-bot-protect="forced"></div></body></html>`)
		case q.Get("ajaxaction") == "popup_command":
			b, _ := io.ReadAll(r.Body)
			g.popupBody = string(b)
			g.popupHdr = r.Header.Clone()
			g.popups++
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, g.popupReply)
		case q.Get("try") == "confirm":
			b, _ := io.ReadAll(r.Body)
			g.confirmBody = string(b)
			if g.refuse {
				io.WriteString(w, `<html><body><div class="error_box">Target is under beginner protection</div></body></html>`)
				return
			}
			if g.page != "" {
				io.WriteString(w, g.page)
				return
			}
			io.WriteString(w, confirmPage)
		case q.Get("screen") == "place":
			io.WriteString(w, placePage)
		case q.Get("screen") == "overview":
			io.WriteString(w, overviewPage)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>login</body></html>")
	})
	mux.HandleFunc("/map/player.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "7,Me,0,3,3210,10\n8,Other,55,1,900,20\n")
	})
	mux.HandleFunc("/map/village.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "100,My+village,500,500,7,3210,1\n101,Barbarian+village,501,500,0,120,2\n102,Tribe+%26+co,510,510,8,900,3\n")
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *gameServer) {
	t.Helper()
	g := &gameServer{popupReply: `{"response":{"message":"ok"}}`}
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{Endpoint: srv.URL, Cookie: "sid=0:abc; pl_auth=xyz"})
	if err != nil {
		t.Fatal(err)
	}
	return c, g
}

func fieldNames(body string) []string {
	var out []string
	for _, kv := range strings.Split(body, "&") {
		name, _, _ := strings.Cut(kv, "=")
		out = append(out, name)
	}
	return out
}

func TestDispatchAttack(t *testing.T) {
	c, g := newTestClient(t)
	home := c.Home("100")
	var seen time.Duration
	res, err := home.DispatchAttack(context.Background(), engine.AttackOrder{
		TargetID: "101",
		Location: world.Coord{X: 501, Y: 500},
		Units:    troops.Composition{"light": 5},
		AbortIf:  func(d time.Duration) bool { seen = d; return false },
	})
	if err != nil {
		t.Fatalf("DispatchAttack: %v", err)
	}
	if !res.Dispatched || res.Vetoed || res.Duration != time.Hour || seen != time.Hour {
		t.Fatalf("unexpected result %+v (abort saw %s)", res, seen)
	}

	form, _ := url.ParseQuery(g.confirmBody)
	if form.Get("light") != "5" || form.Get("x") != "501" || form.Get("y") != "500" || form.Get("attack") != "l" || form.Get("target_type") != "coord" {
		t.Fatalf("bad first form %q", g.confirmBody)
	}
	if form.Has("keep") || form.Has("support") {
		t.Fatalf("unchecked or support inputs leaked into %q", g.confirmBody)
	}
	if names := fieldNames(g.confirmBody); names[0] != "ch4ff3" {
		t.Fatalf("form order not kept: %v", names)
	}

	names := fieldNames(g.popupBody)
	want := []string{"attack", "ch", "x", "source_village", "spear", "light", "building", "h"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("confirm fields %v, want %v", names, want)
	}
	popup, _ := url.ParseQuery(g.popupBody)
	if popup.Get("h") != "deadbeef" || popup.Get("building") != "main" {
		t.Fatalf("bad confirm body %q", g.popupBody)
	}
	if g.popupHdr.Get("X-Requested-With") != "XMLHttpRequest" || g.popupHdr.Get("X-Csrf-Token") != "csrf-2" {
		t.Fatalf("missing ajax headers: %v", g.popupHdr)
	}
	if g.popupHdr.Get("Cookie") == "" || !strings.Contains(g.popupHdr.Get("Cookie"), "pl_auth=xyz") {
		t.Fatalf("session cookie not sent: %q", g.popupHdr.Get("Cookie"))
	}
}

func TestDispatchAttackVetoed(t *testing.T) {
	c, g := newTestClient(t)
	res, err := c.Home("100").DispatchAttack(context.Background(), engine.AttackOrder{
		TargetID: "101",
		Units:    troops.Composition{"light": 5},
		AbortIf:  func(d time.Duration) bool { return d > 30*time.Minute },
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Vetoed || res.Dispatched || g.popups != 0 {
		t.Fatalf("expected veto without confirm, got %+v popups=%d", res, g.popups)
	}
}

func TestDispatchTravelTime(t *testing.T) {
	clock := strings.Replace(confirmPage, `<span class="relative_time" data-duration="3600">1:00:00</span>`, `0:45:00`, 1)
	missing := strings.Replace(confirmPage, `<span class="relative_time" data-duration="3600">1:00:00</span>`, `soon`, 1)

	cases := []struct {
		name       string
		page       string
		abortIf    func(time.Duration) bool
		duration   time.Duration
		vetoed     bool
		dispatched bool
	}{
		{name: "data attribute", page: confirmPage, abortIf: func(time.Duration) bool { return false }, duration: time.Hour, dispatched: true},
		{name: "clock cell", page: clock, abortIf: func(time.Duration) bool { return false }, duration: 45 * time.Minute, dispatched: true},
		{name: "clock cell past boundary", page: clock, abortIf: func(d time.Duration) bool { return d > 30*time.Minute }, duration: 45 * time.Minute, vetoed: true},
		{name: "unknown with boundary", page: missing, abortIf: func(time.Duration) bool { return false }, vetoed: true},
		{name: "unknown without boundary", page: missing, dispatched: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, g := newTestClient(t)
			g.page = tc.page
			res, err := c.Home("100").DispatchAttack(context.Background(), engine.AttackOrder{
				TargetID: "101",
				Units:    troops.Composition{"light": 5},
				AbortIf:  tc.abortIf,
			})
			if err != nil {
				t.Fatal(err)
			}
			if res.Vetoed != tc.vetoed || res.Dispatched != tc.dispatched || res.Duration != tc.duration {
				t.Fatalf("got %+v, want vetoed=%v dispatched=%v duration=%v", res, tc.vetoed, tc.dispatched, tc.duration)
			}
			if tc.vetoed && g.popups != 0 {
				t.Fatalf("vetoed command was confirmed %d times", g.popups)
			}
		})
	}
}

func TestDispatchRefused(t *testing.T) {
	t.Run("error box", func(t *testing.T) {
		c, g := newTestClient(t)
		g.refuse = true
		res, err := c.Home("100").DispatchAttack(context.Background(), engine.AttackOrder{TargetID: "101", Units: troops.Composition{"light": 5}})
		if err != nil || res.Dispatched || g.popups != 0 {
			t.Fatalf("expected silent refusal, got %+v %v", res, err)
		}
	})
	t.Run("popup error", func(t *testing.T) {
		c, g := newTestClient(t)
		g.popupReply = `{"error":["Not enough units"]}`
		ok, err := c.Home("100").DispatchScout(context.Background(), engine.ScoutOrder{TargetID: "101", Units: troops.Composition{"spy": 5}})
		if err != nil || ok {
			t.Fatalf("expected rejection, got %v %v", ok, err)
		}
	})
	t.Run("popup not json", func(t *testing.T) {
		c, g := newTestClient(t)
		g.popupReply = `<html>oops</html>`
		if _, err := c.Home("100").DispatchScout(context.Background(), engine.ScoutOrder{TargetID: "101", Units: troops.Composition{"spy": 5}}); err == nil {
			t.Fatal("expected an error for a non-JSON confirm response")
		}
	})
}

func TestSessionErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	_, err := c.Home("100").DispatchAttack(ctx, engine.AttackOrder{TargetID: "expired", Units: troops.Composition{"light": 5}})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := c.Page(ctx, "100", "captcha", nil); !errors.Is(err, ErrBotProtection) {
		t.Fatalf("expected ErrBotProtection, got %v", err)
	}
}

func TestUnitsAndState(t *testing.T) {
	c, _ := newTestClient(t)
	home := c.Home("100")
	ctx := context.Background()

	at, total, err := home.Units(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if at["spear"] != 120 || at["light"] != 40 || at["spy"] != 9 || len(at) != 3 {
		t.Fatalf("home units %v", at)
	}
	if total["spear"] != 150 || total["light"] != 1040 {
		t.Fatalf("total units %v", total)
	}

	pool := troops.NewPool(home, nil, nil)
	if err := pool.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if pool.Available("light") != 40 || pool.Total("light") != 1040 {
		t.Fatalf("pool not filled from the game: %v", pool.Counts())
	}

	st, err := home.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Points != 3210 || st.Incomings != 2 {
		t.Fatalf("state %+v", st)
	}
	cond := st.Conditions()
	if !cond.ResourcesFull || !cond.UnderAttack {
		t.Fatalf("conditions %+v", cond)
	}
}

func TestParseState(t *testing.T) {
	if _, err := ParseState("<html></html>"); err == nil {
		t.Fatal("expected an error without game data")
	}
	st, err := ParseState(`TribalWars.updateGameData({"village":{"wood":10,"stone":400,"iron":400,"storage_max":400},"player":{"incomings":0}});`)
	if err != nil {
		t.Fatal(err)
	}
	if st.ResourcesFull() || st.Conditions().UnderAttack {
		t.Fatalf("unexpected gates for %+v", st)
	}
}

func TestMapSnapshot(t *testing.T) {
	c, _ := newTestClient(t)
	m := c.Map()
	snap, err := m.Snapshot(context.Background(), "100")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Home.Name != "My village" || snap.Home.Owner != "7" || snap.Home.Tribe != "" {
		t.Fatalf("home %+v", snap.Home)
	}
	if len(snap.Targets) != 2 {
		t.Fatalf("targets %v", snap.Targets)
	}
	barb := snap.Targets["101"]
	if barb.Owner != "" || barb.Ownership() != world.Unowned || barb.Points != 120 {
		t.Fatalf("barbarian %+v", barb)
	}
	other := snap.Targets["102"]
	if other.Name != "Tribe & co" || other.Tribe != "55" || other.Ownership() != world.PlayerOwned {
		t.Fatalf("player village %+v", other)
	}
	if _, err := m.Snapshot(context.Background(), "999"); err == nil {
		t.Fatal("expected an error for an unknown home")
	}
}

func TestParseVillagesBadRow(t *testing.T) {
	if _, err := ParseVillages(strings.NewReader("1,a,x,2,0,10,1\n"), nil); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := ParseVillages(strings.NewReader("1,a\n"), nil); err == nil {
		t.Fatal("expected a short-row error")
	}
}

func TestParseCookies(t *testing.T) {
	got := ParseCookies(" sid=0:abc ;; pl_auth=x=y ")
	if len(got) != 2 || got[0].Name != "sid" || got[0].Value != "0:abc" || got[1].Value != "x=y" {
		t.Fatalf("cookies %v", got)
	}
}

func TestPause(t *testing.T) {
	c, _ := newTestClient(t)
	c.cfg.Delay = time.Second
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error { slept = append(slept, d); return nil }
	for i := 0; i < 20; i++ {
		if err := c.pause(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range slept {
		if d < 3*time.Second || d > 7*time.Second {
			t.Fatalf("pause %s outside 3-7s", d)
		}
	}
}
