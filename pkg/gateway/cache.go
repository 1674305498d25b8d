package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CachedResponse is one stored request/response pair.
type CachedResponse struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	StoredAt time.Time   `json:"stored_at"`
	Body     []byte      `json:"-"`
}

// Cache stores responses on disk, one directory per generation, two files per
// entry: <key>.json metadata and <key>.body payload.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// CacheKey maps a request to its cache entry name. Method and full request
// URI participate, so /a and /a?x=1 are distinct entries.
func CacheKey(method, requestURI string) string {
	sum := sha256.Sum256([]byte(method + " " + requestURI))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) generationDir(gen Generation) string {
	return filepath.Join(c.dir, gen.Name)
}

// Put stores a response into the given generation, replacing any prior entry
// for the same key. The generation directory must already exist (generations
// only come into being through installation).
func (c *Cache) Put(gen Generation, key string, cr *CachedResponse) error {
	return writeEntry(c.generationDir(gen), key, cr)
}

// Match returns the stored response for key, or (nil, nil) when the
// generation has no entry for it.
func (c *Cache) Match(gen Generation, key string) (*CachedResponse, error) {
	dir := c.generationDir(gen)

	meta, err := os.ReadFile(filepath.Join(dir, key+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache meta: %w", err)
	}

	var cr CachedResponse
	if err := json.Unmarshal(meta, &cr); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}

	body, err := os.ReadFile(filepath.Join(dir, key+".body"))
	if os.IsNotExist(err) {
		// Meta without body is a half-written entry; treat as a miss.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache body: %w", err)
	}
	cr.Body = body
	return &cr, nil
}

// Has reports whether the generation exists on disk at all.
func (c *Cache) Has(gen Generation) bool {
	info, err := os.Stat(c.generationDir(gen))
	return err == nil && info.IsDir()
}

// Generations lists every generation directory currently on disk, including
// stale ones. Staging directories are not generations and are skipped.
func (c *Cache) Generations() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := ParseGeneration(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Purge deletes every generation except keep.
func (c *Cache) Purge(keep Generation) error {
	names, err := c.Generations()
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == keep.Name {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, name)); err != nil {
			return fmt.Errorf("purge generation %s: %w", name, err)
		}
	}
	return nil
}

// writeEntry writes body first and meta last, so a crash mid-write leaves a
// half entry that Match treats as a miss rather than serving a torn response.
func writeEntry(dir, key string, cr *CachedResponse) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".body"), cr.Body, 0o644); err != nil {
		return fmt.Errorf("write cache body: %w", err)
	}
	meta, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("encode cache meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("write cache meta: %w", err)
	}
	return nil
}
