package agent

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Stale-loop thresholds.
const (
	DefaultErrorThreshold  = 5
	DefaultEmptyThreshold  = 3
	DefaultRepeatThreshold = 4

	// signatureRingSize bounds the recent-signature window.
	signatureRingSize = 20
)

// StaleGuard detects unproductive loops: consecutive tool errors,
// consecutive empty invocations, and runs of consecutive identical
// calls. One instance per run; not safe for concurrent use.
type StaleGuard struct {
	errorThreshold  int
	emptyThreshold  int
	repeatThreshold int

	consecutiveErrors int
	consecutiveEmpty  int

	ring    [signatureRingSize]uint64
	ringLen int
	ringPos int
}

// NewStaleGuard creates a guard. Non-positive thresholds take the
// defaults.
func NewStaleGuard(errorThreshold, emptyThreshold, repeatThreshold int) *StaleGuard {
	if errorThreshold <= 0 {
		errorThreshold = DefaultErrorThreshold
	}
	if emptyThreshold <= 0 {
		emptyThreshold = DefaultEmptyThreshold
	}
	if repeatThreshold <= 0 {
		repeatThreshold = DefaultRepeatThreshold
	}
	return &StaleGuard{
		errorThreshold:  errorThreshold,
		emptyThreshold:  emptyThreshold,
		repeatThreshold: repeatThreshold,
	}
}

// Record books one tool invocation outcome. An empty invocation counts
// against the error streak too; only a substantive successful call
// resets it.
func (g *StaleGuard) Record(tool string, input json.RawMessage, wasError bool) {
	empty := isEmptyInvocation(tool, input)

	if wasError || empty {
		g.consecutiveErrors++
	} else {
		g.consecutiveErrors = 0
	}

	if empty {
		g.consecutiveEmpty++
	} else {
		g.consecutiveEmpty = 0
	}

	g.push(signature(tool, input))
}

// Stalled reports whether any threshold tripped, with a reason for the
// run log.
func (g *StaleGuard) Stalled() (bool, string) {
	if g.consecutiveErrors >= g.errorThreshold {
		return true, fmt.Sprintf("%d consecutive tool errors", g.consecutiveErrors)
	}
	if g.consecutiveEmpty >= g.emptyThreshold {
		return true, fmt.Sprintf("%d consecutive empty invocations", g.consecutiveEmpty)
	}
	if ok, sig := g.trailingRepeat(); ok {
		return true, fmt.Sprintf("identical call repeated %d times (sig %x)", g.repeatThreshold, sig)
	}
	return false, ""
}

func (g *StaleGuard) push(sig uint64) {
	g.ring[g.ringPos] = sig
	g.ringPos = (g.ringPos + 1) % signatureRingSize
	if g.ringLen < signatureRingSize {
		g.ringLen++
	}
}

// trailingRepeat reports whether the most recent repeatThreshold
// signatures are all identical. Repeats broken up by different calls
// are productive retries, not a loop.
func (g *StaleGuard) trailingRepeat() (bool, uint64) {
	if g.repeatThreshold > g.ringLen {
		return false, 0
	}
	last := g.ring[(g.ringPos-1+signatureRingSize)%signatureRingSize]
	for i := 2; i <= g.repeatThreshold; i++ {
		if g.ring[(g.ringPos-i+signatureRingSize)%signatureRingSize] != last {
			return false, 0
		}
	}
	return true, last
}

// signature hashes tool name plus canonical input. Canonicalisation
// round-trips through encoding/json so key order does not matter.
func signature(tool string, input json.RawMessage) uint64 {
	h := fnv.New64a()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(input)))
	return h.Sum64()
}

func canonicalJSON(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return string(input)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(input)
	}
	return string(out)
}

// isEmptyInvocation applies per-tool emptiness rules: a bash call with
// a blank command, a write_file without path or content, anything else
// with an empty input map.
func isEmptyInvocation(tool string, input json.RawMessage) bool {
	var fields map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return false
		}
	}

	switch tool {
	case "bash":
		cmd, _ := fields["command"].(string)
		return strings.TrimSpace(cmd) == ""
	case "write_file":
		path, _ := fields["path"].(string)
		content, _ := fields["content"].(string)
		return strings.TrimSpace(path) == "" || content == ""
	default:
		return len(fields) == 0
	}
}
