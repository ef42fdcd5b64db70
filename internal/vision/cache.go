package vision

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const cacheIndexFile = "index.json"

// CacheKey identifies one agent answer about one image.
type CacheKey struct {
	ContentHash   string         `json:"content_hash"`
	Category      types.Category `json:"category"`
	AgentID       string         `json:"agent_id"`
	PromptVersion string         `json:"prompt_version"`
}

// String returns the file-safe key: sha256 of the four parts joined by "|".
func (k CacheKey) String() string {
	sum := sha256.Sum256([]byte(k.ContentHash + "|" + string(k.Category) + "|" + k.AgentID + "|" + k.PromptVersion))
	return hex.EncodeToString(sum[:])
}

// CacheEntry is the content of one cache file.
type CacheEntry struct {
	Key        CacheKey           `json:"key"`
	Extraction *ExtractionResult  `json:"extraction,omitempty"`
	Quality    *QualityAssessment `json:"quality,omitempty"`
}

// Cache stores agent answers under <dir>/<key>.json with an index.json listing every key.
// Entries are written as soon as they are produced so a canceled run keeps them.
type Cache struct {
	dir   string
	mu    sync.Mutex
	index map[string]CacheKey
	dirty bool
}

// OpenCache opens (or creates on first Put) the cache in dir.
func OpenCache(dir string) (*Cache, error) {
	c := &Cache{dir: dir, index: make(map[string]CacheKey)}
	err := fsutil.ReadJSON(filepath.Join(dir, cacheIndexFile), &c.index)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read vision cache index: %w", err)
	}
	if c.index == nil {
		c.index = make(map[string]CacheKey)
	}
	return c, nil
}

// Get returns the cached entry for k.
func (c *Cache) Get(k CacheKey) (*CacheEntry, bool) {
	if c == nil {
		return nil, false
	}
	var entry CacheEntry
	if err := fsutil.ReadJSON(c.path(k), &entry); err != nil {
		return nil, false
	}
	if entry.Key != k {
		return nil, false
	}
	return &entry, true
}

// Put stores entry under k.
func (c *Cache) Put(k CacheKey, entry CacheEntry) error {
	if c == nil {
		return nil
	}
	entry.Key = k
	if err := fsutil.WriteJSONAtomic(c.path(k), entry); err != nil {
		return fmt.Errorf("failed to write vision cache entry: %w", err)
	}
	c.mu.Lock()
	if _, ok := c.index[k.String()]; !ok {
		c.index[k.String()] = k
		c.dirty = true
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of indexed entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Keys returns the indexed file keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush writes index.json when entries were added.
func (c *Cache) Flush() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := fsutil.WriteJSONAtomic(filepath.Join(c.dir, cacheIndexFile), c.index); err != nil {
		return fmt.Errorf("failed to write vision cache index: %w", err)
	}
	c.dirty = false
	return nil
}

func (c *Cache) path(k CacheKey) string {
	return filepath.Join(c.dir, k.String()+".json")
}
