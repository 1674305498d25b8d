package gateway

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellBody = "<html><head><title>Guestbook</title></head><body>shell</body></html>"

func testManifest(version int) Manifest {
	return Manifest{
		Version: version,
		Shell:   "/index.html",
		Assets:  []string{"/", "/index.html", "/app.css", "/app.js", "/manifest.webmanifest"},
	}
}

// shellUpstream serves a minimal app shell plus a couple of dynamic paths.
func shellUpstream() *httptest.Server {
	mux := http.NewServeMux()
	serve := func(body, ctype string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", ctype)
			_, _ = io.WriteString(w, body)
		}
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		serve(shellBody, "text/html; charset=utf-8")(w, r)
	})
	mux.HandleFunc("/index.html", serve(shellBody, "text/html; charset=utf-8"))
	mux.HandleFunc("/app.css", serve("body{margin:0}", "text/css"))
	mux.HandleFunc("/extra.css", serve("h1{color:red}", "text/css"))
	mux.HandleFunc("/app.js", serve("console.log('kiosk')", "text/javascript"))
	mux.HandleFunc("/manifest.webmanifest", serve(`{"name":"guestbook"}`, "application/manifest+json"))
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func fastClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = log.New(io.Discard, "", 0)
	c.RetryMax = 0
	c.CheckRetry = retryTransportOnly
	c.HTTPClient.Timeout = 2 * time.Second
	return c
}

func newTestGateway(t *testing.T, upstream string, m Manifest) *Gateway {
	t.Helper()
	u, err := url.Parse(upstream)
	require.NoError(t, err)
	g, err := New(Config{Upstream: u, CacheDir: t.TempDir(), Manifest: m, Client: fastClient()})
	require.NoError(t, err)
	return g
}

func installed(t *testing.T, upstream string, m Manifest) *Gateway {
	t.Helper()
	g := newTestGateway(t, upstream, m)
	require.NoError(t, g.Install(context.Background()))
	require.NoError(t, g.Activate())
	return g
}

func get(g *Gateway, path string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	return w
}

func TestInstall_PopulatesGeneration(t *testing.T) {
	up := shellUpstream()
	defer up.Close()

	g := installed(t, up.URL, testManifest(1))

	for _, asset := range g.manifest.Assets {
		cr, err := g.cache.Match(g.generation, CacheKey(http.MethodGet, asset))
		require.NoError(t, err)
		require.NotNil(t, cr, "asset %s not cached at install", asset)
		assert.Equal(t, http.StatusOK, cr.Status)
		assert.NotEmpty(t, cr.Body)
	}
}

func TestInstall_IsAllOrNothing(t *testing.T) {
	up := shellUpstream()
	defer up.Close()

	m := testManifest(1)
	m.Assets = append(m.Assets, "/does-not-exist.css")
	g := newTestGateway(t, up.URL, m)

	err := g.Install(context.Background())
	require.Error(t, err)
	assert.False(t, g.cache.Has(g.generation), "failed install must not leave a generation behind")

	names, err := g.cache.Generations()
	require.NoError(t, err)
	assert.Empty(t, names, "no staging leftovers either")
}

func TestRollback_ServesPreviousGenerationAfterFailedInstall(t *testing.T) {
	up := shellUpstream()
	defer up.Close()

	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	cacheDir := t.TempDir()

	v1, err := New(Config{Upstream: u, CacheDir: cacheDir, Manifest: testManifest(1), Client: fastClient()})
	require.NoError(t, err)
	require.NoError(t, v1.Install(context.Background()))
	require.NoError(t, v1.Activate())

	// The v2 manifest references an asset the upstream does not have, so
	// installing it fails and the kiosk falls back to v1.
	m2 := testManifest(2)
	m2.Assets = append(m2.Assets, "/does-not-exist.css")
	v2, err := New(Config{Upstream: u, CacheDir: cacheDir, Manifest: m2, Client: fastClient()})
	require.NoError(t, err)
	require.Error(t, v2.Install(context.Background()))
	require.NoError(t, v2.Rollback())
	assert.Equal(t, "shell-v1", v2.generation.Name)

	up.Close()
	w := get(v2, "/index.html", map[string]string{"Sec-Fetch-Mode": "navigate"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Guestbook")
}

func TestRollback_FailsWithNothingOnDisk(t *testing.T) {
	up := shellUpstream()
	defer up.Close()

	g := newTestGateway(t, up.URL, testManifest(1))
	require.Error(t, g.Rollback())
}

func TestActivate_PurgesStaleGenerations(t *testing.T) {
	up := shellUpstream()
	defer up.Close()

	g := newTestGateway(t, up.URL, testManifest(3))

	// Two stale generations left behind by earlier deployments.
	for _, stale := range []string{"shell-v1", "shell-v2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(g.cache.dir, stale), 0o755))
	}

	require.NoError(t, g.Install(context.Background()))
	require.NoError(t, g.Activate())

	names, err := g.cache.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"shell-v3"}, names)
}

func TestServe_NetworkFirstAndTeesToCache(t *testing.T) {
	up := shellUpstream()
	g := installed(t, up.URL, testManifest(1))

	// /extra.css is not in the manifest, so only the steady-state tee can
	// have cached it.
	w := get(g, "/extra.css", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "h1{color:red}", w.Body.String())
	assert.Empty(t, w.Header().Get("X-Guestkiosk-Cache"))

	g.Wait()
	up.Close()

	// Same request offline now comes from the generation.
	w = get(g, "/extra.css", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "h1{color:red}", w.Body.String())
	assert.Equal(t, "hit", w.Header().Get("X-Guestkiosk-Cache"))
	assert.Equal(t, "text/css", w.Header().Get("Content-Type"))
}

func TestServe_Offline_NavigationFallsBackToShell(t *testing.T) {
	up := shellUpstream()
	g := installed(t, up.URL, testManifest(1))
	up.Close()

	w := get(g, "/some/uncached/page", map[string]string{"Sec-Fetch-Mode": "navigate"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, shellBody, w.Body.String())

	// Accept sniff path, no fetch metadata.
	w = get(g, "/another/page", map[string]string{"Accept": "text/html,application/xhtml+xml"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, shellBody, w.Body.String())
}

func TestServe_Offline_NonNavigationGets504(t *testing.T) {
	up := shellUpstream()
	g := installed(t, up.URL, testManifest(1))
	up.Close()

	w := get(g, "/uncached.js", map[string]string{"Accept": "*/*"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestServe_NonOKIsRelayedButNotCached(t *testing.T) {
	up := shellUpstream()
	g := installed(t, up.URL, testManifest(1))

	w := get(g, "/flaky", map[string]string{"Accept": "*/*"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	g.Wait()
	up.Close()

	// The 500 was never stored, so offline this is a plain miss.
	w = get(g, "/flaky", map[string]string{"Accept": "*/*"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestServe_NonGETIsNeverCached(t *testing.T) {
	hits := 0
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			hits++
			_, _ = io.WriteString(w, "posted")
			return
		}
		_, _ = io.WriteString(w, shellBody)
	}))
	g := installed(t, up.URL, testManifest(1))

	r := httptest.NewRequest(http.MethodPost, "/api/things", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hits)

	g.Wait()
	up.Close()

	// Offline, the POST must fail rather than replay from cache.
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/things", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServe_QueryStringsAreDistinctEntries(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data" {
			_, _ = io.WriteString(w, "q="+r.URL.RawQuery)
			return
		}
		_, _ = io.WriteString(w, shellBody)
	}))
	m := Manifest{Version: 1, Shell: "/index.html", Assets: []string{"/index.html"}}
	g := installed(t, up.URL, m)

	get(g, "/data?x=1", nil)
	g.Wait()
	up.Close()

	w := get(g, "/data?x=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "q=x=1", w.Body.String())

	w = get(g, "/data?x=2", map[string]string{"Accept": "*/*"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
