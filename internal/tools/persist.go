package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/voltbot/volt/internal/fsutil"
)

// HandlerKind tags the fixed set of handler shapes a persisted tool may
// declare. The registry dispatches by tag to a compiled-in executor;
// arbitrary handler code is never evaluated.
type HandlerKind string

const (
	// HandlerShellTemplate runs a shell command template with input
	// values substituted for {{param}} placeholders.
	HandlerShellTemplate HandlerKind = "shell_command_template"

	// HandlerHTTPTemplate performs an HTTP request built from method,
	// URL, and body templates.
	HandlerHTTPTemplate HandlerKind = "http_request_template"

	// HandlerScriptFile runs a referenced script file with templated
	// arguments.
	HandlerScriptFile HandlerKind = "script_file_reference"
)

// Handler is the tagged variant a persisted tool executes through.
type Handler struct {
	Kind HandlerKind `json:"kind"`

	// Command is the shell template for HandlerShellTemplate.
	Command string `json:"command,omitempty"`

	// Method and URL build the request for HandlerHTTPTemplate. Body
	// and Headers values are templates too.
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// Script and Args reference the file for HandlerScriptFile.
	Script string   `json:"script,omitempty"`
	Args   []string `json:"args,omitempty"`
}

// Definition is the lossless serialised form of a custom tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Handler     Handler         `json:"handler"`
	Category    string          `json:"category,omitempty"`
}

// Validate checks the definition is executable.
func (d *Definition) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	switch d.Handler.Kind {
	case HandlerShellTemplate:
		if strings.TrimSpace(d.Handler.Command) == "" {
			return fmt.Errorf("shell handler requires a command template")
		}
	case HandlerHTTPTemplate:
		if strings.TrimSpace(d.Handler.URL) == "" {
			return fmt.Errorf("http handler requires a url template")
		}
	case HandlerScriptFile:
		if strings.TrimSpace(d.Handler.Script) == "" {
			return fmt.Errorf("script handler requires a script path")
		}
	default:
		return fmt.Errorf("unknown handler kind: %q", d.Handler.Kind)
	}
	return nil
}

// Persistable is implemented by tools that round-trip through an
// on-disk definition.
type Persistable interface {
	Definition() *Definition
}

// PersistedTool executes a Definition through its tagged handler.
type PersistedTool struct {
	def *Definition
}

// NewPersistedTool wraps a validated definition.
func NewPersistedTool(def *Definition) (*PersistedTool, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &PersistedTool{def: def}, nil
}

func (t *PersistedTool) Name() string        { return t.def.Name }
func (t *PersistedTool) Description() string { return t.def.Description }
func (t *PersistedTool) Category() string    { return t.def.Category }

// Definition implements Persistable.
func (t *PersistedTool) Definition() *Definition { return t.def }

// Schema returns the declared parameter schema.
func (t *PersistedTool) Schema() json.RawMessage {
	if len(t.def.Parameters) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.def.Parameters
}

// Execute dispatches to the compiled executor for the handler tag.
func (t *PersistedTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	values, err := paramValues(params)
	if err != nil {
		return nil, NewToolError(ErrorBadInput, t.def.Name, "input is not a JSON object", err)
	}

	switch t.def.Handler.Kind {
	case HandlerShellTemplate:
		return runShell(ctx, expandTemplate(t.def.Handler.Command, values))
	case HandlerHTTPTemplate:
		return t.runHTTP(ctx, values)
	case HandlerScriptFile:
		args := make([]string, len(t.def.Handler.Args))
		for i, a := range t.def.Handler.Args {
			args[i] = expandTemplate(a, values)
		}
		return runScript(ctx, t.def.Handler.Script, args)
	default:
		return nil, NewToolError(ErrorRuntime, t.def.Name, fmt.Sprintf("unknown handler kind %q", t.def.Handler.Kind), nil)
	}
}

func (t *PersistedTool) runHTTP(ctx context.Context, values map[string]string) (*Result, error) {
	h := t.def.Handler
	method := strings.ToUpper(strings.TrimSpace(expandTemplate(h.Method, values)))
	if method == "" {
		method = http.MethodGet
	}
	url := expandTemplate(h.URL, values)

	var body io.Reader
	if h.Body != "" {
		body = strings.NewReader(expandTemplate(h.Body, values))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, NewToolError(ErrorBadInput, t.def.Name, "build request", err)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, expandTemplate(v, values))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, NewToolError(ErrorRuntime, t.def.Name, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewToolError(ErrorRuntime, t.def.Name, "read response", err)
	}
	return &Result{
		Content: string(data),
		IsError: resp.StatusCode >= 400,
	}, nil
}

// paramValues flattens the input object into string values for
// template substitution.
func paramValues(params json.RawMessage) (map[string]string, error) {
	if len(params) == 0 {
		return map[string]string{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out, nil
}

// expandTemplate replaces {{name}} placeholders with input values.
// Unknown placeholders expand to the empty string.
func expandTemplate(tmpl string, values map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	// Drop unreplaced placeholders.
	for {
		start := strings.Index(out, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+2:]
	}
	return out
}

func definitionPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

func saveDefinition(dir string, def *Definition) error {
	return fsutil.WriteJSONAtomic(definitionPath(dir, def.Name), def)
}

func removeDefinition(dir, name string) error {
	err := os.Remove(definitionPath(dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadPersisted restores every custom tool definition from dir into the
// registry. Malformed files are logged and skipped; discovery is never
// fatal. Returns the number of tools loaded.
func (r *Registry) LoadPersisted() (int, error) {
	if r.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read registry dir: %w", err)
	}

	loaded := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.dir, de.Name())
		var def Definition
		if err := fsutil.ReadJSON(path, &def); err != nil {
			r.logger.Warn("skipping malformed tool definition", "path", path, "error", err)
			continue
		}
		tool, err := NewPersistedTool(&def)
		if err != nil {
			r.logger.Warn("skipping invalid tool definition", "path", path, "error", err)
			continue
		}
		if err := r.register(tool, KindPersisted); err != nil {
			r.logger.Warn("skipping unregistrable tool", "path", path, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Export serialises the custom tool set.
func (r *Registry) Export() ([]byte, error) {
	snap := *r.snapshot.Load()
	defs := make([]*Definition, 0)
	for _, name := range r.Names() {
		e := snap[name]
		if e.kind != KindPersisted {
			continue
		}
		if p, ok := e.tool.(Persistable); ok {
			defs = append(defs, p.Definition())
		}
	}
	return json.MarshalIndent(defs, "", "  ")
}

// Import registers (and persists) every definition in data, returning
// how many were added. Duplicates and invalid entries are skipped.
func (r *Registry) Import(data []byte) (int, error) {
	var defs []*Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return 0, fmt.Errorf("parse import: %w", err)
	}

	count := 0
	for _, def := range defs {
		tool, err := NewPersistedTool(def)
		if err != nil {
			r.logger.Warn("skipping invalid imported tool", "tool", def.Name, "error", err)
			continue
		}
		if err := r.RegisterCustom(tool); err != nil {
			r.logger.Warn("skipping imported tool", "tool", def.Name, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

func runShell(ctx context.Context, command string) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return &Result{Content: "empty command", IsError: true}, nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, err
		}
		return &Result{Content: strings.TrimSpace(string(out) + "\n" + err.Error()), IsError: true}, nil
	}
	return &Result{Content: string(out)}, nil
}

func runScript(ctx context.Context, script string, args []string) (*Result, error) {
	if _, err := os.Stat(script); err != nil {
		return &Result{Content: "script not found: " + script, IsError: true}, nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", append([]string{script}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, err
		}
		return &Result{Content: strings.TrimSpace(string(out) + "\n" + err.Error()), IsError: true}, nil
	}
	return &Result{Content: string(out)}, nil
}
