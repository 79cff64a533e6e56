package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DefaultToolTimeout bounds tool executions that do not declare one.
const DefaultToolTimeout = 60 * time.Second

// entry pairs a tool with its registration metadata.
type entry struct {
	tool    Tool
	kind    Kind
	timeout time.Duration
}

// Registry maps tool names to tools. Writers serialise through a
// mutex; readers work against an immutable snapshot that is swapped
// atomically on every write, so lookups never block registration.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]entry]
	dir      string
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry. dir is where custom tool definitions
// persist; empty disables persistence.
func NewRegistry(dir string, opts ...RegistryOption) *Registry {
	r := &Registry{dir: dir}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "tool-registry")
	}
	empty := map[string]entry{}
	r.snapshot.Store(&empty)
	return r
}

// RegisterOption configures a single registration.
type RegisterOption func(*entry)

// WithTimeout declares the per-tool execution timeout.
func WithTimeout(d time.Duration) RegisterOption {
	return func(e *entry) { e.timeout = d }
}

// Register adds a builtin tool. Registering over an existing name
// replaces it; builtins are installed at boot before anything else.
func (r *Registry) Register(tool Tool, opts ...RegisterOption) error {
	return r.register(tool, KindBuiltin, opts...)
}

// RegisterCustom adds a user-defined tool and persists its definition.
// Only Persistable tools (persisted definitions) can be registered this
// way; a name collision with any existing tool is rejected.
func (r *Registry) RegisterCustom(tool Tool, opts ...RegisterOption) error {
	r.mu.Lock()
	if _, ok := (*r.snapshot.Load())[tool.Name()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateName, tool.Name())
	}
	r.mu.Unlock()

	if err := r.register(tool, KindPersisted, opts...); err != nil {
		return err
	}

	if r.dir != "" {
		if p, ok := tool.(Persistable); ok {
			if err := saveDefinition(r.dir, p.Definition()); err != nil {
				return fmt.Errorf("persist tool %s: %w", tool.Name(), err)
			}
		}
	}
	return nil
}

// registerPromoted adds a compiled tool discovered in the promoted
// directory. Promoted tools replace a same-named persisted tool.
func (r *Registry) registerPromoted(tool Tool, opts ...RegisterOption) error {
	return r.register(tool, KindPromoted, opts...)
}

func (r *Registry) register(tool Tool, kind Kind, opts ...RegisterOption) error {
	name := tool.Name()
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	e := entry{tool: tool, kind: kind, timeout: DefaultToolTimeout}
	for _, opt := range opts {
		opt(&e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(func(m map[string]entry) {
		m[name] = e
	})
	return nil
}

// Remove deletes a custom or promoted tool. Builtins cannot be removed.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snapshot.Load()
	e, ok := cur[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if e.kind == KindBuiltin {
		return fmt.Errorf("%w: %s", ErrBuiltinRemoval, name)
	}

	r.replaceLocked(func(m map[string]entry) {
		delete(m, name)
	})

	if r.dir != "" && e.kind == KindPersisted {
		if err := removeDefinition(r.dir, name); err != nil {
			r.logger.Warn("failed to remove tool definition", "tool", name, "error", err)
		}
	}
	return nil
}

// replaceLocked clones the snapshot, applies mutate, and swaps it in.
// Callers hold r.mu.
func (r *Registry) replaceLocked(mutate func(map[string]entry)) {
	cur := *r.snapshot.Load()
	next := make(map[string]entry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	mutate(next)
	r.snapshot.Store(&next)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := (*r.snapshot.Load())[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := (*r.snapshot.Load())[name]
	return ok
}

// KindOf returns the registration kind of a tool.
func (r *Registry) KindOf(name string) (Kind, bool) {
	e, ok := (*r.snapshot.Load())[name]
	if !ok {
		return "", false
	}
	return e.kind, true
}

// All returns every registered tool in name order.
func (r *Registry) All() []Tool {
	snap := *r.snapshot.Load()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, snap[name].tool)
	}
	return out
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	snap := *r.snapshot.Load()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByCategory returns tools whose category matches cat, name order.
func (r *Registry) ListByCategory(cat string) []Tool {
	var out []Tool
	for _, t := range r.All() {
		if categoryOf(t) == cat {
			out = append(out, t)
		}
	}
	return out
}

// Timeout returns the declared execution timeout for a tool.
func (r *Registry) Timeout(name string) time.Duration {
	if e, ok := (*r.snapshot.Load())[name]; ok && e.timeout > 0 {
		return e.timeout
	}
	return DefaultToolTimeout
}

// Execute dispatches an invocation. The input is validated against the
// tool's schema before the handler runs; schema violations become
// BadInput errors without invoking the tool. Timeouts are enforced from
// the tool's registration and surface as Timeout errors.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	e, ok := (*r.snapshot.Load())[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := validateInput(e.tool, params); err != nil {
		return nil, NewToolError(ErrorBadInput, name, err.Error(), err)
	}

	timeout := e.timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.tool.Execute(execCtx, params)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, NewToolError(ErrorTimeout, name, fmt.Sprintf("exceeded %s", timeout), err)
		}
		if _, ok := AsToolError(err); ok {
			return nil, err
		}
		return nil, NewToolError(ErrorRuntime, name, "", err)
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}
