package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeTool struct {
	name   string
	schema json.RawMessage
	run    func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "fake tool" }
func (f *fakeTool) Schema() json.RawMessage { return f.schema }

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if f.run != nil {
		return f.run(ctx, params)
	}
	return &Result{Content: "ok"}, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry("")
	if err := r.Register(&fakeTool{name: "alpha"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := r.Get("alpha")
	if !ok {
		t.Fatal("expected alpha to be registered")
	}
	if got.Name() != "alpha" {
		t.Errorf("got %q, want alpha", got.Name())
	}
	if kind, _ := r.KindOf("alpha"); kind != KindBuiltin {
		t.Errorf("kind = %q, want builtin", kind)
	}
}

func TestRegisterInvalidName(t *testing.T) {
	r := NewRegistry("")
	for _, name := range []string{"", "Alpha", "1tool", "has-dash", "has space"} {
		if err := r.Register(&fakeTool{name: name}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("name %q: got %v, want ErrInvalidName", name, err)
		}
	}
}

func TestRegisterCustomDuplicate(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if err := r.Register(&fakeTool{name: "bash"}); err != nil {
		t.Fatalf("register builtin: %v", err)
	}

	def := &Definition{
		Name:    "bash",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "echo hi"},
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}
	if err := r.RegisterCustom(tool); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("got %v, want ErrDuplicateName", err)
	}
}

func TestRemoveBuiltinForbidden(t *testing.T) {
	r := NewRegistry("")
	if err := r.Register(&fakeTool{name: "bash"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Remove("bash"); !errors.Is(err, ErrBuiltinRemoval) {
		t.Errorf("got %v, want ErrBuiltinRemoval", err)
	}
	if !r.Has("bash") {
		t.Error("builtin should survive a removal attempt")
	}
}

func TestRemoveCustom(t *testing.T) {
	r := NewRegistry(t.TempDir())
	def := &Definition{
		Name:    "greet",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "echo hello"},
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}
	if err := r.RegisterCustom(tool); err != nil {
		t.Fatalf("register custom: %v", err)
	}
	if err := r.Remove("greet"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if r.Has("greet") {
		t.Error("greet should be gone")
	}
	if err := r.Remove("greet"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestExecuteValidatesSchema(t *testing.T) {
	r := NewRegistry("")
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`)
	err := r.Register(&fakeTool{name: "strict", schema: schema})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = r.Execute(context.Background(), "strict", json.RawMessage(`{}`))
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("got %v, want ToolError", err)
	}
	if te.Type != ErrorBadInput {
		t.Errorf("type = %q, want bad_input", te.Type)
	}

	res, err := r.Execute(context.Background(), "strict", json.RawMessage(`{"command":"ls"}`))
	if err != nil {
		t.Fatalf("valid input: %v", err)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := NewRegistry("")
	slow := &fakeTool{
		name: "slow",
		run: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	if err := r.Register(slow, WithTimeout(20*time.Millisecond)); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Execute(context.Background(), "slow", nil)
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("got %v, want ToolError", err)
	}
	if te.Type != ErrorTimeout {
		t.Errorf("type = %q, want timeout", te.Type)
	}
}

func TestExecuteNotFound(t *testing.T) {
	r := NewRegistry("")
	if _, err := r.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestConcurrentReadDuringWrite(t *testing.T) {
	r := NewRegistry("")
	if err := r.Register(&fakeTool{name: "stable"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = r.Register(&fakeTool{name: "churn"})
			_ = r.Remove("churn")
		}
	}()
	for i := 0; i < 200; i++ {
		if !r.Has("stable") {
			t.Error("stable disappeared during writes")
		}
	}
	<-done
}

func TestListByCategory(t *testing.T) {
	r := NewRegistry("")
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	files := r.ListByCategory("files")
	if len(files) != 2 {
		t.Fatalf("files category has %d tools, want 2", len(files))
	}
	if files[0].Name() != "read_file" || files[1].Name() != "write_file" {
		t.Errorf("got %s, %s", files[0].Name(), files[1].Name())
	}

	if got := r.ListByCategory("nope"); len(got) != 0 {
		t.Errorf("unknown category returned %d tools", len(got))
	}
}

func TestLoadPromotedShadowsPersisted(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)

	def := &Definition{
		Name:    "upgraded",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "echo json"},
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}
	if err := r.RegisterCustom(tool); err != nil {
		t.Fatalf("register custom: %v", err)
	}

	RegisterPromotedFactory("upgraded", func() Tool {
		return &fakeTool{name: "upgraded"}
	})
	t.Cleanup(func() { delete(promoted, "upgraded") })

	n, err := r.LoadPromoted()
	if err != nil {
		t.Fatalf("load promoted: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded %d, want 1", n)
	}
	if kind, _ := r.KindOf("upgraded"); kind != KindPromoted {
		t.Errorf("kind = %q, want promoted", kind)
	}
}
