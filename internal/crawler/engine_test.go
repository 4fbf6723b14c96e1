package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Luka12-dev/Simple-Web-Crawler/internal/config"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/fetcher"
	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

func testConfig(seed string) config.Config {
	cfg := config.Default()
	cfg.Crawl.Seed = seed
	cfg.Crawl.MaxDepth = 3
	cfg.Crawl.MaxPages = 50
	cfg.Crawl.RequestTimeout = config.DurationFrom(5 * time.Second)
	cfg.Worker.Concurrency = 2
	cfg.Worker.QueueSize = 64
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func htmlPage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body>"+body+"</body></html>")
	}
}

func TestEngineCrawlsSiteBreadthFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		htmlPage(`<a href="/a">a</a>
			<a href="/b">b</a>
			<a href="/x?id=1">x</a>
			<a href="http://b.test/page">external</a>
			<form action="/search" method="get"><input name="q"></form>`)(w, r)
	})
	mux.HandleFunc("/a", htmlPage(`<a href="/c">c</a>`))
	mux.HandleFunc("/b", htmlPage(`no links here`))
	mux.HandleFunc("/c", htmlPage(`leaf`))
	mux.HandleFunc("/x", htmlPage(`leaf`))
	mux.HandleFunc("/search", htmlPage(`results`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.State(); got != StateCompleted {
		t.Fatalf("state = %s, want completed", got)
	}

	g := e.Snapshot()
	root := srv.URL + "/"

	wantDepths := map[string]int{
		root:                0,
		srv.URL + "/a":      1,
		srv.URL + "/b":      1,
		srv.URL + "/x?id=1": 1,
		srv.URL + "/search": 1,
		srv.URL + "/c":      2,
	}
	if len(g.Pages) != len(wantDepths) {
		t.Errorf("pages = %d, want %d (%v)", len(g.Pages), len(wantDepths), pageKeys(g))
	}
	for key, depth := range wantDepths {
		rec, ok := g.Pages[key]
		if !ok {
			t.Errorf("page %q missing", key)
			continue
		}
		if rec.Depth != depth {
			t.Errorf("page %q depth = %d, want %d", key, rec.Depth, depth)
		}
		if rec.StatusCode != http.StatusOK {
			t.Errorf("page %q status = %d, want 200", key, rec.StatusCode)
		}
	}

	// the external link is an edge target but never fetched
	external := "http://b.test/page"
	if _, fetched := g.Pages[external]; fetched {
		t.Errorf("external page %q was fetched", external)
	}
	if !hasEdge(g, root, external) {
		t.Errorf("edge %q -> %q missing", root, external)
	}

	// out-degree counts distinct targets including filtered ones
	if got := g.Pages[root].OutDegree; got != 5 {
		t.Errorf("root out-degree = %d, want 5", got)
	}

	assertEndpoint(t, g, srv.URL+"/x?id=1", types.EndpointQuery, []string{"id"})
	assertEndpoint(t, g, srv.URL+"/search", types.EndpointForm, []string{"q"})
}

func TestEngineRespectsMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			htmlPage(`leaf`)(w, r)
			return
		}
		var links string
		for i := 0; i < 20; i++ {
			links += `<a href="/p` + string(rune('a'+i)) + `">x</a>`
		}
		htmlPage(links)(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Crawl.MaxPages = 5
	e := newTestEngine(t, cfg)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	g := e.Snapshot()
	if len(g.Pages) != 5 {
		t.Errorf("pages = %d, want exactly 5", len(g.Pages))
	}
}

func TestEngineRespectsMaxDepth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<a href="/d1">next</a>`))
	mux.HandleFunc("/d1", htmlPage(`<a href="/d2">next</a>`))
	mux.HandleFunc("/d2", htmlPage(`<a href="/d3">next</a>`))
	mux.HandleFunc("/d3", htmlPage(`<a href="/d4">next</a>`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Crawl.MaxDepth = 2
	e := newTestEngine(t, cfg)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	g := e.Snapshot()
	if len(g.Pages) != 3 {
		t.Errorf("pages = %d, want 3 (depths 0..2), got %v", len(g.Pages), pageKeys(g))
	}
	if _, ok := g.Pages[srv.URL+"/d3"]; ok {
		t.Error("page beyond max depth was fetched")
	}
}

// scriptedFetcher serves canned HTML bodies without any network I/O, so
// fetches complete near-instantly and worker completions race the
// dispatcher's empty-frontier check as hard as possible.
type scriptedFetcher struct {
	pages map[string]string
}

func (f scriptedFetcher) Fetch(_ context.Context, u *url.URL) fetcher.Result {
	body, ok := f.pages[u.String()]
	if !ok {
		return fetcher.Result{Kind: fetcher.KindHTTPError, StatusCode: http.StatusNotFound, FinalURL: u}
	}
	return fetcher.Result{
		Kind:        fetcher.KindSuccess,
		StatusCode:  http.StatusOK,
		Body:        []byte(body),
		ContentType: "text/html",
		FinalURL:    u,
	}
}

func TestEngineDrainsEveryAdmittedEntry(t *testing.T) {
	pages := map[string]string{
		"http://a.test/":   `<html><body><a href="/l1">next</a></body></html>`,
		"http://a.test/l1": `<html><body><a href="/l2">next</a></body></html>`,
		"http://a.test/l2": `<html><body><a href="/l3">next</a></body></html>`,
		"http://a.test/l3": `<html><body>leaf</body></html>`,
	}
	for i := 0; i < 500; i++ {
		cfg := testConfig("http://a.test/")
		cfg.Worker.Concurrency = 4
		e := newTestEngine(t, cfg)
		e.SetFetcher(scriptedFetcher{pages: pages})

		if err := e.Run(context.Background()); err != nil {
			t.Fatalf("iteration %d: Run: %v", i, err)
		}
		if got := e.State(); got != StateCompleted {
			t.Fatalf("iteration %d: state = %s, want completed", i, got)
		}
		if got := len(e.Snapshot().Pages); got != len(pages) {
			t.Fatalf("iteration %d: pages = %d, want %d (an admitted entry was dropped)",
				i, got, len(pages))
		}
	}
}

func TestEngineRecordsTimeoutAndContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<a href="/slow">slow</a><a href="/fast">fast</a>`))
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		htmlPage(`late`)(w, r)
	})
	mux.HandleFunc("/fast", htmlPage(`quick`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Crawl.RequestTimeout = config.DurationFrom(100 * time.Millisecond)
	e := newTestEngine(t, cfg)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.State(); got != StateCompleted {
		t.Fatalf("state = %s, want completed", got)
	}

	g := e.Snapshot()
	slow, ok := g.Pages[srv.URL+"/slow"]
	if !ok {
		t.Fatal("slow page has no record")
	}
	if slow.Error != types.ErrorTimeout {
		t.Errorf("slow page error = %q, want timeout", slow.Error)
	}
	if slow.StatusCode != 0 {
		t.Errorf("slow page status = %d, want 0", slow.StatusCode)
	}
	fast, ok := g.Pages[srv.URL+"/fast"]
	if !ok {
		t.Fatal("fast page has no record")
	}
	if fast.Failed() || fast.StatusCode != http.StatusOK {
		t.Errorf("fast page = %+v, want status 200", fast)
	}
}

func TestEngineTerminatesOnSelfLoop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<a href="/">me again</a>`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL))
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not terminate on self-loop")
	}

	g := e.Snapshot()
	if len(g.Pages) != 1 {
		t.Errorf("pages = %d, want 1", len(g.Pages))
	}
	root := srv.URL + "/"
	if !hasEdge(g, root, root) {
		t.Error("self-loop edge missing")
	}
	if got := g.Pages[root].OutDegree; got != 1 {
		t.Errorf("out-degree = %d, want 1", got)
	}
}

func TestEngineRecordsHTTPErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<a href="/missing">gone</a><a href="/custom404">styled</a>`))
	mux.HandleFunc("/custom404", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<html><body>not here, try <a href="/sitemap">the sitemap</a></body></html>`)
	})
	mux.HandleFunc("/sitemap", htmlPage(`links`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := e.Snapshot()

	rec, ok := g.Pages[srv.URL+"/missing"]
	if !ok {
		t.Fatal("404 page has no record")
	}
	if rec.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.StatusCode)
	}
	if rec.Failed() {
		t.Errorf("HTTP error misclassified as network failure: %q", rec.Error)
	}

	// an error page with an HTML body still has its links followed
	custom, ok := g.Pages[srv.URL+"/custom404"]
	if !ok {
		t.Fatal("custom 404 page has no record")
	}
	if custom.OutDegree != 1 {
		t.Errorf("custom 404 out-degree = %d, want 1", custom.OutDegree)
	}
	if _, ok := g.Pages[srv.URL+"/sitemap"]; !ok {
		t.Error("link on error page not followed")
	}
}

func TestEngineSkipsNonHTMLExpansion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<a href="/data">data</a>`))
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"link": "<a href=\"/hidden\">x</a>"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	g := e.Snapshot()
	if _, ok := g.Pages[srv.URL+"/hidden"]; ok {
		t.Error("link inside JSON body was followed")
	}
	if got := g.Pages[srv.URL+"/data"].OutDegree; got != 0 {
		t.Errorf("non-HTML page out-degree = %d, want 0", got)
	}
}

func TestEngineFollowsFormActionsWithoutDetection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<form action="/search" method="get"><input name="q"></form>`))
	mux.HandleFunc("/search", htmlPage(`no results`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Crawl.DetectParams = false
	e := newTestEngine(t, cfg)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	g := e.Snapshot()
	if !hasEdge(g, srv.URL+"/", srv.URL+"/search") {
		t.Error("missing edge to form action")
	}
	if _, ok := g.Pages[srv.URL+"/search"]; !ok {
		t.Error("form action was not fetched")
	}
	if len(g.Endpoints) != 0 {
		t.Errorf("endpoints recorded with detection off: %v", g.Endpoints)
	}
}

func TestEngineRecordsParamlessFormEdge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlPage(`<form action="/refresh"><input type="submit"></form>`))
	mux.HandleFunc("/refresh", htmlPage(`refreshed`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testConfig(srv.URL))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	g := e.Snapshot()
	if !hasEdge(g, srv.URL+"/", srv.URL+"/refresh") {
		t.Error("missing edge to action of form without named inputs")
	}
	if got := g.Pages[srv.URL+"/"].OutDegree; got != 1 {
		t.Errorf("root out-degree = %d, want 1", got)
	}
	if len(g.Endpoints) != 0 {
		t.Errorf("form without named inputs recorded an endpoint: %v", g.Endpoints)
	}
}

func TestEngineCancellation(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			<-release
			htmlPage(`leaf`)(w, r)
			return
		}
		htmlPage(`<a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a>`)(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Crawl.RequestTimeout = config.DurationFrom(200 * time.Millisecond)
	e := newTestEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// wait for the root page to complete, then cancel mid-crawl
	var sawRoot bool
	for ev := range e.Events() {
		if !sawRoot && ev.Depth == 0 {
			sawRoot = true
			cancel()
			close(release)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled crawl did not terminate")
	}
	if got := e.State(); got != StateCancelled {
		t.Errorf("state = %s, want cancelled", got)
	}
	// the root fetch that completed is still recorded
	if _, ok := e.Snapshot().Pages[srv.URL+"/"]; !ok {
		t.Error("completed fetch missing from cancelled run")
	}
}

func TestEngineLifecycleErrors(t *testing.T) {
	cfg := testConfig("http://a.test/")
	e := newTestEngine(t, cfg)

	if err := e.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Pause before Run = %v, want ErrNotRunning", err)
	}
	if err := e.Resume(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Resume before Run = %v, want ErrNotRunning", err)
	}
}

func TestEnginePauseResume(t *testing.T) {
	e := newTestEngine(t, testConfig("http://a.test/"))
	e.state.Store(int32(StateRunning))

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := e.State(); got != StatePaused {
		t.Fatalf("state after Pause = %s, want paused", got)
	}
	if err := e.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("double Pause = %v, want ErrNotRunning", err)
	}
	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := e.State(); got != StateRunning {
		t.Fatalf("state after Resume = %s, want running", got)
	}
	if err := e.Resume(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("double Resume = %v, want ErrNotRunning", err)
	}
}

func TestEngineRejectsInvalidSeed(t *testing.T) {
	cfg := testConfig("not-a-url")
	e := newTestEngine(t, cfg)
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("Run accepted an unparseable seed")
	}
	if got := e.State(); got != StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
	if err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run = %v, want ErrAlreadyStarted", err)
	}
}

func TestQueryParamNames(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"id=1", []string{"id"}},
		{"a=1&b=2", []string{"a", "b"}},
		{"a=1&a=2", []string{"a"}},
		{"flag", []string{"flag"}},
		{"a=1&&b=2", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := queryParamNames(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("queryParamNames(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("queryParamNames(%q) = %v, want %v", tt.raw, got, tt.want)
				break
			}
		}
	}
}

func pageKeys(g *types.Graph) []string {
	keys := make([]string, 0, len(g.Pages))
	for k := range g.Pages {
		keys = append(keys, k)
	}
	return keys
}

func hasEdge(g *types.Graph, from, to string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

func assertEndpoint(t *testing.T, g *types.Graph, url string, kind types.EndpointKind, params []string) {
	t.Helper()
	for _, ep := range g.Endpoints {
		if ep.URL != url || ep.Kind != kind {
			continue
		}
		if len(ep.Params) != len(params) {
			t.Errorf("endpoint %s params = %v, want %v", url, ep.Params, params)
			return
		}
		for i := range params {
			if ep.Params[i] != params[i] {
				t.Errorf("endpoint %s params = %v, want %v", url, ep.Params, params)
				return
			}
		}
		return
	}
	t.Errorf("endpoint %s (%s) not found", url, kind)
}
