package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{
			name: "valid shell",
			def: Definition{
				Name:    "echo_tool",
				Handler: Handler{Kind: HandlerShellTemplate, Command: "echo {{msg}}"},
			},
		},
		{
			name: "valid http",
			def: Definition{
				Name:    "fetch",
				Handler: Handler{Kind: HandlerHTTPTemplate, URL: "https://example.com/{{path}}"},
			},
		},
		{
			name: "valid script",
			def: Definition{
				Name:    "runner",
				Handler: Handler{Kind: HandlerScriptFile, Script: "/opt/run.sh"},
			},
		},
		{
			name: "shell without command",
			def: Definition{
				Name:    "broken",
				Handler: Handler{Kind: HandlerShellTemplate},
			},
			wantErr: true,
		},
		{
			name: "unknown handler kind",
			def: Definition{
				Name:    "mystery",
				Handler: Handler{Kind: "javascript_eval"},
			},
			wantErr: true,
		},
		{
			name: "bad name",
			def: Definition{
				Name:    "Bad-Name",
				Handler: Handler{Kind: HandlerShellTemplate, Command: "true"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)

	def := &Definition{
		Name:        "weather",
		Description: "Look up the weather",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		Handler: Handler{
			Kind: HandlerHTTPTemplate,
			URL:  "https://wttr.in/{{city}}",
		},
		Category: "network",
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}
	if err := r.RegisterCustom(tool); err != nil {
		t.Fatalf("register custom: %v", err)
	}

	fresh := NewRegistry(dir)
	n, err := fresh.LoadPersisted()
	if err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded %d, want 1", n)
	}

	got, ok := fresh.Get("weather")
	if !ok {
		t.Fatal("weather missing after reload")
	}
	p, ok := got.(Persistable)
	if !ok {
		t.Fatal("reloaded tool is not persistable")
	}

	want, _ := json.Marshal(def)
	have, _ := json.Marshal(p.Definition())
	if !reflect.DeepEqual(want, have) {
		t.Errorf("round-trip changed definition:\n got %s\nwant %s", have, want)
	}
}

func TestLoadPersistedSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)

	good := &Definition{
		Name:    "good",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "true"},
	}
	if err := saveDefinition(dir, good); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := saveDefinition(dir, &Definition{Name: "badkind", Handler: Handler{Kind: "nope"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := r.LoadPersisted()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d, want 1", n)
	}
	if !r.Has("good") || r.Has("badkind") {
		t.Errorf("registry contents wrong: %v", r.Names())
	}
}

func TestExpandTemplate(t *testing.T) {
	values := map[string]string{"city": "lisbon", "unit": "c"}
	tests := []struct {
		tmpl string
		want string
	}{
		{"https://wttr.in/{{city}}?u={{unit}}", "https://wttr.in/lisbon?u=c"},
		{"no placeholders", "no placeholders"},
		{"{{missing}} stays empty", " stays empty"},
		{"{{city}}{{city}}", "lisbonlisbon"},
	}
	for _, tt := range tests {
		if got := expandTemplate(tt.tmpl, values); got != tt.want {
			t.Errorf("expandTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestShellTemplateExecute(t *testing.T) {
	def := &Definition{
		Name:    "greeter",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "echo hello {{who}}"},
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"who":"world"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if strings.TrimSpace(res.Content) != "hello world" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestShellTemplateFailingCommand(t *testing.T) {
	def := &Definition{
		Name:    "fails",
		Handler: Handler{Kind: HandlerShellTemplate, Command: "exit 3"},
	}
	tool, err := NewPersistedTool(def)
	if err != nil {
		t.Fatalf("new persisted: %v", err)
	}

	res, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Error("exit 3 should produce an error result")
	}
}

func TestExportImport(t *testing.T) {
	src := NewRegistry(t.TempDir())
	defs := []*Definition{
		{Name: "one", Handler: Handler{Kind: HandlerShellTemplate, Command: "echo 1"}},
		{Name: "two", Handler: Handler{Kind: HandlerShellTemplate, Command: "echo 2"}},
	}
	for _, def := range defs {
		tool, err := NewPersistedTool(def)
		if err != nil {
			t.Fatalf("new persisted: %v", err)
		}
		if err := src.RegisterCustom(tool); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	data, err := src.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := NewRegistry(t.TempDir())
	n, err := dst.Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}
	if !dst.Has("one") || !dst.Has("two") {
		t.Errorf("registry contents wrong: %v", dst.Names())
	}

	// Re-importing the same set should add nothing.
	n, err = dst.Import(data)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if n != 0 {
		t.Errorf("re-import added %d, want 0", n)
	}
}
