package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// OnDeviceToolSet is the tool subset the on-device tier may use.
var OnDeviceToolSet = []string{"bash", "write_file", "read_file"}

// BashTool runs a shell command.
type BashTool struct{}

func (BashTool) Name() string        { return "bash" }
func (BashTool) Description() string { return "Run a shell command and return its combined output." }
func (BashTool) Category() string    { return "system" }

func (BashTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
		},
		"required": []string{"command"},
	})
}

func (BashTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, NewToolError(ErrorBadInput, "bash", "parse input", err)
	}
	return runShell(ctx, in.Command)
}

// ReadFileTool reads a file from disk.
type ReadFileTool struct{}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Read a text file and return its contents." }
func (ReadFileTool) Category() string    { return "files" }

func (ReadFileTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read.",
			},
		},
		"required": []string{"path"},
	})
}

func (ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, NewToolError(ErrorBadInput, "read_file", "parse input", err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return &Result{Content: "path is required", IsError: true}, nil
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	return &Result{Content: string(data)}, nil
}

// WriteFileTool writes a file to disk, creating parent directories.
type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Write content to a file, creating directories as needed." }
func (WriteFileTool) Category() string    { return "files" }

func (WriteFileTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Destination path.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write.",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, NewToolError(ErrorBadInput, "write_file", "parse input", err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return &Result{Content: "path is required", IsError: true}, nil
	}
	if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if err := os.WriteFile(in.Path, []byte(in.Content), 0o644); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	return &Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

// HTTPRequestTool performs an HTTP request.
type HTTPRequestTool struct{}

func (HTTPRequestTool) Name() string        { return "http_request" }
func (HTTPRequestTool) Description() string { return "Perform an HTTP request and return the response body." }
func (HTTPRequestTool) Category() string    { return "network" }

func (HTTPRequestTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method (default GET).",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body.",
			},
		},
		"required": []string{"url"},
	})
}

func (HTTPRequestTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in struct {
		URL    string `json:"url"`
		Method string `json:"method"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, NewToolError(ErrorBadInput, "http_request", "parse input", err)
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if in.Body != "" {
		body = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, body)
	if err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	return &Result{Content: string(data), IsError: resp.StatusCode >= 400}, nil
}

// RegisterBuiltins installs the core tool set.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []Tool{BashTool{}, ReadFileTool{}, WriteFileTool{}, HTTPRequestTool{}} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func mustSchema(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
