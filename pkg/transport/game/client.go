// Package game talks to the game's web interface: it sends attack and scout
// commands, reads the troops at home and fetches the world map.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/tribalfarm/tfarm/internal/utils"
	"github.com/tribalfarm/tfarm/pkg/whttp"
)

var (
	// ErrSessionExpired is returned when the game sends us back to the login page.
	ErrSessionExpired = errors.New("game session expired, provide a fresh cookie")
	// ErrBotProtection is returned when the game demands a captcha.
	ErrBotProtection = errors.New("bot protection hit, solve the captcha in a browser and restart")
)

var hTokenRe = regexp.MustCompile(`&(?:amp;)?h=(\w+)`)

// Config configures a Client.
type Config struct {
	// Endpoint is the world base URL, e.g. https://nl1.tribalwars.nl/
	Endpoint string
	// Cookie is the browser cookie string, "name=value; name2=value2".
	Cookie    string
	UserAgent string
	Proxy     string
	// Delay scales the random pause before each request (3 to 7 times Delay).
	Delay    time.Duration
	RetryMax int
	Log      *logrus.Entry
}

// Client is one logged-in game session. Requests are serialised.
type Client struct {
	cfg  Config
	base *url.URL
	http *retryablehttp.Client
	log  *logrus.Entry

	mu      sync.Mutex
	csrf    string
	h       string
	referer string
	rng     *rand.Rand
	sleep   func(context.Context, time.Duration) error
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid game endpoint %q", cfg.Endpoint)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(utils.Log)
	}
	hc, err := whttp.NewClient(whttp.ClientOptions{
		Proxy:    cfg.Proxy,
		RetryMax: cfg.RetryMax,
		Timeout:  30 * time.Second,
		Logger:   utils.RetryLogger{Entry: log},
	})
	if err != nil {
		return nil, err
	}
	if cfg.Cookie != "" {
		hc.HTTPClient.Jar.SetCookies(base, ParseCookies(cfg.Cookie))
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = whttp.DefaultUserAgent
	}
	return &Client{
		cfg:   cfg,
		base:  base,
		http:  hc,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}, nil
}

// ParseCookies splits a browser cookie string.
func ParseCookies(s string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out = append(out, &http.Cookie{Name: strings.TrimSpace(name), Value: value})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) pause(ctx context.Context) error {
	if c.cfg.Delay <= 0 {
		return nil
	}
	lo := 3 * c.cfg.Delay
	hi := 7 * c.cfg.Delay
	return c.sleep(ctx, lo+time.Duration(c.rng.Int63n(int64(hi-lo)+1)))
}

func (c *Client) url(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	u.RawQuery = query.Encode()
	return u.String()
}

func gameURL(village string, extra map[string]string) url.Values {
	q := url.Values{}
	q.Set("village", village)
	for k, v := range extra {
		q.Set(k, v)
	}
	return q
}

func (c *Client) headers(ajax bool) []whttp.WHTTPHeader {
	hs := []whttp.WHTTPHeader{
		{Name: "User-Agent", Value: c.cfg.UserAgent},
		{Name: "Origin", Value: strings.TrimSuffix(c.base.String(), "/")},
		{Name: "Upgrade-Insecure-Requests", Value: "1"},
	}
	if c.referer != "" {
		hs = append(hs, whttp.WHTTPHeader{Name: "Referer", Value: c.referer})
	}
	if c.csrf != "" {
		hs = append(hs, whttp.WHTTPHeader{Name: "X-CSRF-Token", Value: c.csrf})
	}
	if ajax {
		hs = append(hs,
			whttp.WHTTPHeader{Name: "Accept", Value: "application/json, text/javascript, */*; q=0.01"},
			whttp.WHTTPHeader{Name: "X-Requested-With", Value: "XMLHttpRequest"},
			whttp.WHTTPHeader{Name: "TribalWars-Ajax", Value: "1"},
		)
	}
	return hs
}

type mode int

const (
	modePage mode = iota
	modeAjax
	modeRaw
)

// do sends one request and updates the session tokens from the response.
func (c *Client) do(ctx context.Context, method, target string, fields [][2]string, m mode) (*whttp.WHTTPRes, *goquery.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pause(ctx); err != nil {
		return nil, nil, err
	}
	req := &whttp.WHTTPReq{URL: target, Method: method, Headers: c.headers(m == modeAjax)}
	if method == http.MethodPost {
		req.Body = whttp.FormBody(fields)
		req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: "Content-Type", Value: "application/x-www-form-urlencoded; charset=UTF-8"})
	}
	res, err := whttp.SendHTTPRequest(ctx, req, c.http)
	if err != nil {
		c.log.Warnf("%s %s: %v", method, target, err)
		return nil, nil, err
	}
	c.log.Debugf("%s %s [%d]", method, target, res.StatusCode)
	if m == modeRaw {
		return res, nil, nil
	}

	if res.FinalURL != "" && !strings.Contains(res.FinalURL, "game.php") {
		return res, nil, ErrSessionExpired
	}
	if tok := hTokenRe.FindStringSubmatch(res.BodyString); tok != nil {
		c.h = tok[1]
	}
	c.referer = res.FinalURL
	if m == modeAjax {
		return res, nil, nil
	}

	doc, err := res.Document()
	if err != nil {
		return res, nil, fmt.Errorf("parsing %s: %w", target, err)
	}
	if doc.Find(`[data-bot-protect="forced"]`).Length() > 0 {
		c.log.Warn("Bot protection hit! Cannot continue. Solve captcha and restart")
		return res, doc, ErrBotProtection
	}
	if token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok {
		c.csrf = token
	} else {
		c.csrf = ""
	}
	return res, doc, nil
}

// Page fetches a game screen for a village.
func (c *Client) Page(ctx context.Context, village, screen string, extra map[string]string) (*goquery.Document, error) {
	q := gameURL(village, extra)
	q.Set("screen", screen)
	_, doc, err := c.do(ctx, http.MethodGet, c.url("game.php", q), nil, modePage)
	return doc, err
}

// Token returns the current h token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}
