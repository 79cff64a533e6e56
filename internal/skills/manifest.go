package skills

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of file events into one
// re-discovery.
const DefaultWatchDebounce = 250 * time.Millisecond

// Manifest holds the discovered skill set. Discovery builds a fresh
// snapshot and publishes it in one swap, so readers never observe a
// half-updated manifest.
type Manifest struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	ordered []*Skill
	byName  map[string]*Skill

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
	debounce    time.Duration
}

// ManifestOption configures a Manifest.
type ManifestOption func(*Manifest)

// WithLogger sets the manifest logger.
func WithLogger(logger *slog.Logger) ManifestOption {
	return func(m *Manifest) { m.logger = logger }
}

// WithWatchDebounce overrides the watcher debounce interval.
func WithWatchDebounce(d time.Duration) ManifestOption {
	return func(m *Manifest) { m.debounce = d }
}

// NewManifest creates a manifest rooted at dir.
func NewManifest(dir string, opts ...ManifestOption) *Manifest {
	m := &Manifest{
		dir:      dir,
		byName:   make(map[string]*Skill),
		debounce: DefaultWatchDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "skills")
	}
	return m
}

// Discover recursively scans the skills directory. Every directory
// containing a SKILL.md is a skill; malformed files are logged and
// skipped. The new skill set replaces the old one atomically. A missing
// skills directory yields an empty manifest, not an error.
func (m *Manifest) Discover(ctx context.Context) error {
	var ordered []*Skill
	byName := make(map[string]*Skill)

	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == m.dir {
				return filepath.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || d.Name() != SkillFilename {
			return nil
		}

		skill, perr := ParseSkillFile(path)
		if perr != nil {
			m.logger.Warn("skipping malformed skill", "path", path, "error", perr)
			return nil
		}
		if prev, ok := byName[skill.Name]; ok {
			m.logger.Warn("duplicate skill name, keeping first",
				"name", skill.Name, "kept", prev.Path, "skipped", skill.Path)
			return nil
		}

		byName[skill.Name] = skill
		ordered = append(ordered, skill)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan skills: %w", err)
	}

	m.mu.Lock()
	m.ordered = ordered
	m.byName = byName
	m.mu.Unlock()

	m.logger.Info("discovered skills", "count", len(ordered), "dir", m.dir)
	return nil
}

// Get returns a skill by name.
func (m *Manifest) Get(name string) (*Skill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	return s, ok
}

// Summaries returns name/description pairs in insertion order.
func (m *Manifest) Summaries() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.ordered))
	for _, s := range m.ordered {
		out = append(out, s.Summary())
	}
	return out
}

// Names returns skill names in insertion order.
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ordered))
	for _, s := range m.ordered {
		out = append(out, s.Name)
	}
	return out
}

// Count returns the number of discovered skills.
func (m *Manifest) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ordered)
}

// Dir returns the skills root directory.
func (m *Manifest) Dir() string { return m.dir }

// Watch re-runs discovery when SKILL.md files change under the skills
// root. Events are debounced. Watching a missing directory is an error;
// call after the directory exists.
func (m *Manifest) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	// Watch existing skill subdirectories too; fsnotify is not recursive.
	entries, _ := os.ReadDir(m.dir)
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(m.dir, e.Name())); err != nil {
				m.logger.Warn("failed to watch skill dir", "dir", e.Name(), "error", err)
			}
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.watchCancel = cancel

	m.watchWg.Add(1)
	go m.watchLoop(watchCtx)
	return nil
}

func (m *Manifest) watchLoop(ctx context.Context) {
	defer m.watchWg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := m.watcher.Add(ev.Name); err != nil {
						m.logger.Warn("failed to watch new dir", "dir", ev.Name, "error", err)
					}
				}
			}
			if !relevantEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := m.Discover(ctx); err != nil {
				m.logger.Warn("re-discovery failed", "error", err)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", "error", err)
		}
	}
}

func relevantEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	return base == SkillFilename || !strings.Contains(base, ".")
}

// Close stops the watcher if one is running.
func (m *Manifest) Close() error {
	if m.watchCancel != nil {
		m.watchCancel()
	}
	var err error
	if m.watcher != nil {
		err = m.watcher.Close()
	}
	m.watchWg.Wait()
	return err
}
