package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tribalfarm/tfarm/pkg/troops"
)

// Units reads the units at home from the rally point and the units owned in
// total from the village overview.
func (h *Home) Units(ctx context.Context) (troops.Composition, troops.Composition, error) {
	place, err := h.c.Page(ctx, h.ID, "place", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reading units at home: %w", err)
	}
	home := homeUnits(place)

	overview, err := h.c.Page(ctx, h.ID, "overview", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reading unit totals: %w", err)
	}
	total := totalUnits(overview)
	h.c.log.Debugf("Units at home in %s: %s", h.ID, home)
	return home, total, nil
}

func homeUnits(doc *goquery.Document) troops.Composition {
	out := troops.Composition{}
	doc.Find("input[data-all-count]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		raw, _ := in.Attr("data-all-count")
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && name != "" {
			out[name] = n
		}
	})
	return out
}

// totalUnits parses the unit box of the overview, where each row carries a
// link with data-unit and the count in a <strong>.
func totalUnits(doc *goquery.Document) troops.Composition {
	out := troops.Composition{}
	doc.Find("#show_units a[data-unit]").Each(func(_ int, a *goquery.Selection) {
		unit, _ := a.Attr("data-unit")
		raw := a.Find("strong").First().Text()
		if raw == "" {
			raw = a.Parent().Find("strong").First().Text()
		}
		raw = strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
		if n, err := strconv.Atoi(raw); err == nil && unit != "" {
			out[unit] = n
		}
	})
	return out
}
