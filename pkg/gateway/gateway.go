// Package gateway sits between the kiosk display and the upstream origin
// that hosts the app shell. Same-origin GETs are answered network-first,
// falling back to the current cache generation, then to the shell document
// for navigations, then to a synthetic 504. The display always gets a
// response; network failures never propagate out of the gateway.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/guestkiosk/guestkiosk/internal/utils"
)

// Config wires a Gateway.
type Config struct {
	// Upstream is the origin hosting the shell assets.
	Upstream *url.URL
	// CacheDir is the root under which generation directories live.
	CacheDir string
	// Manifest describes the shell assets and carries the version marker.
	Manifest Manifest
	// Client overrides the default retrying HTTP client. Optional.
	Client *retryablehttp.Client
}

type Gateway struct {
	upstream   *url.URL
	cache      *Cache
	generation Generation
	manifest   Manifest
	client     *retryablehttp.Client

	// puts tracks in-flight best-effort cache writes so tests and shutdown
	// can drain them.
	puts sync.WaitGroup
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Upstream == nil {
		return nil, fmt.Errorf("upstream URL is required")
	}
	if err := cfg.Manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	cache, err := NewCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = log.New(io.Discard, "", 0)
		// One retry at most: an offline kiosk must fall back to cache
		// quickly instead of backing off against a dead network.
		client.RetryMax = 1
		client.RetryWaitMin = 100 * time.Millisecond
		client.RetryWaitMax = 500 * time.Millisecond
		client.CheckRetry = retryTransportOnly
	}

	return &Gateway{
		upstream:   cfg.Upstream,
		cache:      cache,
		generation: NewGeneration(cfg.Manifest.Version),
		manifest:   cfg.Manifest,
		client:     client,
	}, nil
}

// Generation returns the generation this gateway serves from.
func (g *Gateway) Generation() Generation {
	return g.generation
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Mutating methods must never be replayed from cache, and caching them
	// would be wrong anyway. They go straight upstream.
	if r.Method != http.MethodGet {
		g.passthrough(w, r)
		return
	}

	// Absolute-form requests for other origins (a misconfigured display
	// using us as a forward proxy) are not ours to answer from cache.
	if r.URL.IsAbs() && r.URL.Host != "" && r.URL.Host != r.Host {
		g.passthrough(w, r)
		return
	}

	resp, err := g.fetch(r)
	if err == nil {
		defer resp.Body.Close()
		g.relay(w, r, resp)
		return
	}

	utils.Log.WithFields(logrus.Fields{"path": r.URL.Path, "err": err}).Debug("network fetch failed, trying cache")
	g.serveFallback(w, r)
}

// relay streams a network response back to the display. A 200 is also stored
// into the current generation, replacing any prior entry for the request;
// the store is best-effort and never delays the response.
func (g *Gateway) relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The connection died mid-body; same as a failed fetch.
		utils.Log.WithField("path", r.URL.Path).Debug("upstream body read failed, trying cache")
		g.serveFallback(w, r)
		return
	}

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	if resp.StatusCode != http.StatusOK {
		return
	}

	cr := &CachedResponse{
		URL:      r.URL.RequestURI(),
		Status:   resp.StatusCode,
		Header:   storedHeader(resp.Header),
		StoredAt: time.Now().UTC(),
		Body:     body,
	}
	key := CacheKey(r.Method, r.URL.RequestURI())
	g.puts.Add(1)
	go func() {
		defer g.puts.Done()
		if err := g.cache.Put(g.generation, key, cr); err != nil {
			utils.Log.WithFields(logrus.Fields{"path": cr.URL, "err": err}).Debug("cache put failed")
		}
	}()
}

// serveFallback answers a request the network could not: exact cache match,
// then the shell document for navigations, then a synthetic 504.
func (g *Gateway) serveFallback(w http.ResponseWriter, r *http.Request) {
	key := CacheKey(r.Method, r.URL.RequestURI())
	cached, err := g.cache.Match(g.generation, key)
	if err != nil {
		utils.Log.WithField("err", err).Debug("cache match failed")
	}

	if cached == nil && isNavigation(r) {
		cached, err = g.cache.Match(g.generation, CacheKey(http.MethodGet, g.manifest.Shell))
		if err != nil {
			utils.Log.WithField("err", err).Debug("shell fallback match failed")
		}
	}

	if cached != nil {
		copyHeader(w.Header(), cached.Header)
		w.Header().Set("X-Guestkiosk-Cache", "hit")
		w.WriteHeader(cached.Status)
		_, _ = w.Write(cached.Body)
		return
	}

	http.Error(w, "offline and not cached", http.StatusGatewayTimeout)
}

// Wait drains in-flight cache writes.
func (g *Gateway) Wait() {
	g.puts.Wait()
}

// fetch forwards a GET to the upstream origin.
func (g *Gateway) fetch(r *http.Request) (*http.Response, error) {
	target := g.upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	req, err := retryablehttp.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	for _, h := range []string{"Accept", "Accept-Language", "If-None-Match", "If-Modified-Since"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	return g.client.Do(req)
}

// passthrough proxies a request upstream without touching the cache. It uses
// the underlying non-retrying client: replaying a mutating call is worse
// than failing it.
func (g *Gateway) passthrough(w http.ResponseWriter, r *http.Request) {
	target := g.upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := g.client.HTTPClient.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// retryTransportOnly retries connection-level failures but never HTTP error
// statuses: any response from upstream counts as network success and must be
// relayed as-is, not swallowed by the retry layer.
func retryTransportOnly(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if cerr := ctx.Err(); cerr != nil {
		return false, cerr
	}
	return err != nil, nil
}

// isNavigation reports whether a request is a top-level page load. Browsers
// in kiosk mode send Sec-Fetch-Mode; the Accept sniff covers the rest.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// storedHeader keeps the subset of response headers worth replaying offline.
func storedHeader(h http.Header) http.Header {
	out := http.Header{}
	for _, k := range []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"} {
		if v := h.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}
