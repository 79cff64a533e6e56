package router

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/voltbot/volt/internal/fsutil"
)

// Cache owns the manifest file and answers lookups against it.
type Cache struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	manifest *Manifest

	regexMu    sync.Mutex
	regexCache map[string]*regexp.Regexp
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a cache persisted at path.
func NewCache(path string, opts ...CacheOption) *Cache {
	c := &Cache{
		path:       path,
		regexCache: make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "router")
	}
	return c
}

// Load reads the manifest from disk. A missing or corrupt file is
// treated as absent, so the caller regenerates.
func (c *Cache) Load() bool {
	var m Manifest
	if err := fsutil.ReadJSON(c.path, &m); err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("manifest unreadable, treating as absent", "path", c.path, "error", err)
		}
		return false
	}
	if m.Version != ManifestVersion || len(m.Categories) == 0 {
		c.logger.Warn("manifest invalid, treating as absent", "path", c.path, "version", m.Version)
		return false
	}

	c.mu.Lock()
	c.manifest = &m
	c.mu.Unlock()
	return true
}

// Loaded reports whether a manifest is in memory.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest != nil
}

// Categories returns a copy of the current category list.
func (c *Cache) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.manifest == nil {
		return nil
	}
	out := make([]Category, len(c.manifest.Categories))
	copy(out, c.manifest.Categories)
	return out
}

// IsStale reports whether the recorded skill and tool sets differ from
// the current ones. Stale iff the symmetric difference is non-empty.
func (c *Cache) IsStale(skillNames, toolNames []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.manifest == nil {
		return true
	}
	return !sameSet(c.manifest.RecordedSkills, skillNames) ||
		!sameSet(c.manifest.RecordedTools, toolNames)
}

// Route looks the request up in the manifest. The request is trimmed
// and lowercased; categories are scanned in declared order and the
// first match wins. Returns nil when nothing matches.
func (c *Cache) Route(request string) *RouteResult {
	req := strings.ToLower(strings.TrimSpace(request))
	if req == "" {
		return nil
	}

	c.mu.RLock()
	m := c.manifest
	c.mu.RUnlock()
	if m == nil {
		return nil
	}

	for i := range m.Categories {
		cat := &m.Categories[i]
		if c.categoryMatches(cat, req) {
			return &RouteResult{Category: cat, Plan: cat.Plan}
		}
	}
	return nil
}

func (c *Cache) categoryMatches(cat *Category, req string) bool {
	for _, pattern := range cat.Patterns {
		re := c.compile(pattern)
		if re != nil && re.MatchString(req) {
			return true
		}
	}
	for _, trigger := range cat.Triggers {
		if len(trigger) == 0 {
			continue
		}
		all := true
		for _, kw := range trigger {
			if !strings.Contains(req, strings.ToLower(kw)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// compile caches compiled patterns. Invalid patterns are logged once
// and never match.
func (c *Cache) compile(pattern string) *regexp.Regexp {
	c.regexMu.Lock()
	defer c.regexMu.Unlock()
	if re, ok := c.regexCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		c.logger.Warn("skipping invalid route pattern", "pattern", pattern, "error", err)
		re = nil
	}
	c.regexCache[pattern] = re
	return re
}

// save persists the manifest through an atomic rename.
func (c *Cache) save(m *Manifest) error {
	return fsutil.WriteJSONAtomic(c.path, m)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
