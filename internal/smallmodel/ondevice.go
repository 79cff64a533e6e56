package smallmodel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
)

// OnDeviceClient shells out to a local inference binary. The binary is
// only shipped on some platforms; Available probes for it.
type OnDeviceClient struct {
	binary string
}

// NewOnDeviceClient creates a client for the configured binary path.
// An empty path yields a never-available client.
func NewOnDeviceClient(binary string) *OnDeviceClient {
	return &OnDeviceClient{binary: binary}
}

// Available reports whether the inference binary resolves.
func (c *OnDeviceClient) Available() bool {
	if c.binary == "" {
		return false
	}
	_, err := exec.LookPath(c.binary)
	return err == nil
}

func (c *OnDeviceClient) Provider() string { return ledger.ProviderOnDevice }
func (c *OnDeviceClient) Model() string    { return "on-device" }

// Generate runs one completion through the binary. The prompt goes to
// stdin; the completion is read from stdout. A failed or empty run is a
// null result, not an error, so callers fall through to cloud tiers.
func (c *OnDeviceClient) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.Available() {
		return nil, fmt.Errorf("on-device binary not available")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	args := []string{"--max-tokens", strconv.Itoa(maxTokens)}
	if req.System != "" {
		args = append(args, "--system", req.System)
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, nil
	}
	return &Result{
		Text: text,
		Usage: Usage{
			InputTokens:  (len(req.System) + len(req.Prompt)) / ledger.CharsPerToken,
			OutputTokens: len(text) / ledger.CharsPerToken,
		},
	}, nil
}
