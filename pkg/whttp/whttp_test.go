package whttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendHTTPRequest(t *testing.T) {
	var gotBody, gotType, gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><head><title>\n Place \r</title></head><body><input name=\"h\" value=\"abc\"></body></html>")
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := SendHTTPRequest(ctx, &WHTTPReq{URL: srv.URL + "/page"}, client)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if res.StatusCode != 200 || res.HTTPTitle != "Place" {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.HTTPTitle)
	}
	doc, err := res.Document()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := doc.Find("input[name=h]").Attr("value"); v != "abc" {
		t.Fatalf("expected input value abc, got %q", v)
	}

	body := FormBody([][2]string{{"x", "500"}, {"y", "501"}, {"name", "a b&c"}})
	if body != "x=500&y=501&name=a+b%26c" {
		t.Fatalf("unexpected form body %q", body)
	}
	_, err = SendHTTPRequest(ctx, &WHTTPReq{
		URL:     srv.URL + "/post",
		Method:  http.MethodPost,
		Body:    body,
		Headers: []WHTTPHeader{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}, {Name: "User-Agent", Value: "tfarm-test"}},
	}, client)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if gotBody != body || gotType != "application/x-www-form-urlencoded" || gotUA != "tfarm-test" {
		t.Fatalf("server saw %q %q %q", gotBody, gotType, gotUA)
	}

	res, err = SendHTTPRequest(ctx, &WHTTPReq{URL: srv.URL + "/old"}, client)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(res.FinalURL, "/page") {
		t.Fatalf("expected redirect to be followed, final URL %q", res.FinalURL)
	}
}

func TestNewClientBadProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{Proxy: "://nope"}); err == nil {
		t.Fatal("expected proxy parse error")
	}
}
