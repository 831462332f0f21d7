package game

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// Home binds a Client to one of the player's villages. It implements
// engine.Transport and troops.Source for that village.
type Home struct {
	c  *Client
	ID string
}

// Home returns the view of one home village.
func (c *Client) Home(id string) *Home {
	return &Home{c: c, ID: id}
}

var _ engine.Transport = (*Home)(nil)
var _ troops.Source = (*Home)(nil)

// DispatchAttack sends an attack through the rally point. AbortIf is consulted
// once the confirm screen shows the travel time.
func (h *Home) DispatchAttack(ctx context.Context, o engine.AttackOrder) (engine.AttackResult, error) {
	var res engine.AttackResult
	confirm, err := h.prepare(ctx, o.TargetID, o.Location, o.Units)
	if err != nil || confirm == nil {
		return res, err
	}
	var known bool
	res.Duration, known = travelTime(confirm)
	if o.AbortIf != nil && !known {
		h.c.log.Warnf("Command to %s aborted, travel time not shown on confirm screen", o.TargetID)
		res.Vetoed = true
		return res, nil
	}
	if o.AbortIf != nil && o.AbortIf(res.Duration) {
		h.c.log.Infof("Command to %s aborted before confirm (travel %s)", o.TargetID, res.Duration)
		res.Vetoed = true
		return res, nil
	}
	res.Dispatched, err = h.confirm(ctx, confirm)
	return res, err
}

// DispatchScout sends a scouting command. Scouts are never checked against
// forced peace.
func (h *Home) DispatchScout(ctx context.Context, o engine.ScoutOrder) (bool, error) {
	confirm, err := h.prepare(ctx, o.TargetID, o.Location, o.Units)
	if err != nil || confirm == nil {
		return false, err
	}
	return h.confirm(ctx, confirm)
}

// prepare loads the rally point, fills in the units and posts the first form.
// A nil document with a nil error means the game refused the command.
func (h *Home) prepare(ctx context.Context, target string, loc world.Coord, units troops.Composition) (*goquery.Document, error) {
	place, err := h.c.Page(ctx, h.ID, "place", map[string]string{"target": target})
	if err != nil {
		return nil, fmt.Errorf("opening rally point: %w", err)
	}

	fields := formFields(place.Find("#command-data-form"))
	if len(fields) == 0 {
		fields = formFields(place.Selection)
	}
	fields = setField(fields, "x", strconv.Itoa(loc.X))
	fields = setField(fields, "y", strconv.Itoa(loc.Y))
	fields = setField(fields, "target_type", "coord")
	for _, u := range unitOrder(units) {
		fields = setField(fields, u, strconv.Itoa(units[u]))
	}
	fields = setField(fields, "attack", "l")

	q := gameURL(h.ID, map[string]string{"screen": "place", "try": "confirm"})
	_, confirm, err := h.c.do(ctx, http.MethodPost, h.c.url("game.php", q), fields, modePage)
	if err != nil {
		return nil, fmt.Errorf("posting command to %s: %w", target, err)
	}
	if msg := strings.TrimSpace(confirm.Find("div.error_box").First().Text()); msg != "" {
		h.c.log.Warnf("Game refused command to %s: %s", target, msg)
		return nil, nil
	}
	if confirm.Find("#command-data-form").Length() == 0 && confirm.Find("form").Length() == 0 {
		h.c.log.Warnf("No confirm form for command to %s", target)
		return nil, nil
	}
	return confirm, nil
}

// confirm posts the confirm form through the popup endpoint.
func (h *Home) confirm(ctx context.Context, doc *goquery.Document) (bool, error) {
	form := doc.Find("#command-data-form")
	if form.Length() == 0 {
		form = doc.Selection
	}
	var fields [][2]string
	for _, f := range formFields(form) {
		if f[0] == "support" {
			continue
		}
		fields = append(fields, f)
	}
	fields = append(fields, [2]string{"building", "main"}, [2]string{"h", h.c.Token()})

	q := gameURL(h.ID, map[string]string{"screen": "place", "ajaxaction": "popup_command"})
	res, _, err := h.c.do(ctx, http.MethodPost, h.c.url("game.php", q), fields, modeAjax)
	if err != nil {
		return false, fmt.Errorf("confirming command: %w", err)
	}
	if !gjson.Valid(res.BodyString) {
		return false, fmt.Errorf("confirm response is not JSON (status %d)", res.StatusCode)
	}
	body := gjson.Parse(res.BodyString)
	if e := body.Get("error"); e.Exists() {
		msg := e.String()
		if e.IsArray() && len(e.Array()) > 0 {
			msg = e.Array()[0].String()
		}
		h.c.log.Warnf("Command rejected: %s", msg)
		return false, nil
	}
	return true, nil
}

// formFields collects named inputs in document order. Submit buttons and
// unchecked boxes are left out, like a browser would.
func formFields(s *goquery.Selection) [][2]string {
	var out [][2]string
	s.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		switch t, _ := in.Attr("type"); t {
		case "submit", "button", "image":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
		}
		value, _ := in.Attr("value")
		out = append(out, [2]string{name, value})
	})
	return out
}

func setField(fields [][2]string, name, value string) [][2]string {
	for i := range fields {
		if fields[i][0] == name {
			fields[i][1] = value
			return fields
		}
	}
	return append(fields, [2]string{name, value})
}

func unitOrder(c troops.Composition) []string {
	key := c.Key()
	if key == "" {
		return nil
	}
	var out []string
	for _, kv := range strings.Split(key, ",") {
		name, _, _ := strings.Cut(kv, "=")
		out = append(out, name)
	}
	return out
}

// travelTime reads the duration shown on the confirm screen, either from a
// data-duration attribute (seconds) or from the "H:MM:SS" cell text.
func travelTime(doc *goquery.Document) (time.Duration, bool) {
	if v, ok := doc.Find("[data-duration]").First().Attr("data-duration"); ok {
		if s, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && s >= 0 {
			return time.Duration(s) * time.Second, true
		}
	}
	var (
		d     time.Duration
		found bool
	)
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(td.Text()), "duration") {
			return true
		}
		if parsed, ok := parseClock(td.Next().Text()); ok {
			d, found = parsed, true
			return false
		}
		return true
	})
	return d, found
}

func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
