package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/guestkiosk/guestkiosk/internal/utils"
)

// Install populates a fresh generation with every manifest asset, fetched
// from upstream. All-or-nothing: any asset failing aborts the whole install
// and leaves whatever generation is currently on disk untouched. Assets are
// staged in a throwaway directory and promoted by rename, so a generation
// directory either exists complete or not at all.
//
// Installing a generation that already exists is a no-op; changing the
// manifest requires bumping its version.
func (g *Gateway) Install(ctx context.Context) error {
	if g.cache.Has(g.generation) {
		utils.Log.WithField("generation", g.generation).Debug("generation already installed")
		return nil
	}

	staging := filepath.Join(g.cache.dir, ".staging-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, asset := range g.manifest.Assets {
		cr, err := g.fetchAsset(ctx, asset)
		if err != nil {
			return fmt.Errorf("install %s: asset %s: %w", g.generation, asset, err)
		}
		if asset == g.manifest.Shell {
			logShellTitle(cr.Body)
		}
		if err := writeEntry(staging, CacheKey(http.MethodGet, asset), cr); err != nil {
			return fmt.Errorf("install %s: asset %s: %w", g.generation, asset, err)
		}
	}

	if err := os.Rename(staging, g.cache.generationDir(g.generation)); err != nil {
		return fmt.Errorf("promote generation %s: %w", g.generation, err)
	}

	utils.Log.WithFields(logrus.Fields{
		"generation": g.generation,
		"assets":     len(g.manifest.Assets),
	}).Info("installed cache generation")
	return nil
}

// Activate purges every generation whose name differs from the current one.
// Only after activation is at most one generation enumerable, which keeps
// serve-time lookups unambiguous.
func (g *Gateway) Activate() error {
	if !g.cache.Has(g.generation) {
		return fmt.Errorf("generation %s is not installed", g.generation)
	}
	if err := g.cache.Purge(g.generation); err != nil {
		return err
	}
	utils.Log.WithField("generation", g.generation).Info("activated cache generation")
	return nil
}

// Rollback points the gateway at the newest generation already on disk.
// Used when installing the target generation failed: the previous deployment
// keeps serving rather than the kiosk going dark.
func (g *Gateway) Rollback() error {
	names, err := g.cache.Generations()
	if err != nil {
		return err
	}

	var best Generation
	for _, name := range names {
		gen, err := ParseGeneration(name)
		if err != nil {
			continue
		}
		if best.Name == "" || gen.Version > best.Version {
			best = gen
		}
	}
	if best.Name == "" {
		return fmt.Errorf("no cache generation to roll back to")
	}

	g.generation = best
	utils.Log.WithField("generation", best).Warn("rolled back to previous cache generation")
	return nil
}

func (g *Gateway) fetchAsset(ctx context.Context, asset string) (*CachedResponse, error) {
	target := g.upstream.ResolveReference(&url.URL{Path: asset})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &CachedResponse{
		URL:      asset,
		Status:   resp.StatusCode,
		Header:   storedHeader(resp.Header),
		StoredAt: time.Now().UTC(),
		Body:     body,
	}, nil
}

func logShellTitle(body []byte) {
	if title, ok := getHTMLTitle(string(body)); ok {
		utils.Log.WithField("title", title).Debug("shell document fetched")
	} else {
		utils.Log.Warn("shell document has no <title>, check the manifest shell path")
	}
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := traverse(c); ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
