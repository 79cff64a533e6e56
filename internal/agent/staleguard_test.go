package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestStaleGuardConsecutiveErrors(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	// Distinct commands keep the repeat check out of the way; only the
	// error streak should trip.
	for i := 0; i < DefaultErrorThreshold-1; i++ {
		g.Record("bash", json.RawMessage(fmt.Sprintf(`{"command":"make step%d"}`, i)), true)
	}
	if stalled, _ := g.Stalled(); stalled {
		t.Fatal("stalled one error before the threshold")
	}

	g.Record("bash", json.RawMessage(`{"command":"make final"}`), true)
	stalled, reason := g.Stalled()
	if !stalled {
		t.Fatal("expected stall at the error threshold")
	}
	if !strings.Contains(reason, "consecutive tool errors") {
		t.Errorf("reason = %q, want consecutive tool errors", reason)
	}
}

func TestStaleGuardErrorCounterResets(t *testing.T) {
	g := NewStaleGuard(3, 0, 0)

	g.Record("bash", json.RawMessage(`{"command":"a"}`), true)
	g.Record("bash", json.RawMessage(`{"command":"b"}`), true)
	g.Record("bash", json.RawMessage(`{"command":"c"}`), false)
	g.Record("bash", json.RawMessage(`{"command":"d"}`), true)

	if stalled, _ := g.Stalled(); stalled {
		t.Fatal("a success between errors must reset the counter")
	}
}

func TestStaleGuardEmptyInvocations(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		input string
		empty bool
	}{
		{"bash blank command", "bash", `{"command":"  "}`, true},
		{"bash missing command", "bash", `{}`, true},
		{"bash real command", "bash", `{"command":"ls"}`, false},
		{"write_file no path", "write_file", `{"content":"x"}`, true},
		{"write_file no content", "write_file", `{"path":"/tmp/a"}`, true},
		{"write_file complete", "write_file", `{"path":"/tmp/a","content":"x"}`, false},
		{"other empty map", "read_file", `{}`, true},
		{"other with fields", "read_file", `{"path":"/tmp/a"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyInvocation(tt.tool, json.RawMessage(tt.input)); got != tt.empty {
				t.Errorf("isEmptyInvocation(%s, %s) = %v, want %v", tt.tool, tt.input, got, tt.empty)
			}
		})
	}
}

func TestStaleGuardEmptyCountsTowardErrors(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	// Alternating failed and empty calls never yield a productive
	// result; the error streak accumulates across both.
	for i := 0; i < DefaultErrorThreshold-1; i++ {
		if i%2 == 0 {
			g.Record("bash", json.RawMessage(`{"command":"make"}`), true)
		} else {
			g.Record("bash", json.RawMessage(`{"command":""}`), false)
		}
	}
	if stalled, _ := g.Stalled(); stalled {
		t.Fatal("stalled one call before the error threshold")
	}

	g.Record("bash", json.RawMessage(`{"command":"make"}`), true)
	stalled, reason := g.Stalled()
	if !stalled {
		t.Fatal("expected the error streak to include empty calls")
	}
	if !strings.Contains(reason, "consecutive tool errors") {
		t.Errorf("reason = %q, want consecutive tool errors", reason)
	}
}

func TestStaleGuardEmptyThreshold(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	for i := 0; i < DefaultEmptyThreshold; i++ {
		g.Record("bash", json.RawMessage(`{"command":""}`), false)
	}
	stalled, reason := g.Stalled()
	if !stalled {
		t.Fatal("expected stall at the empty threshold")
	}
	if !strings.Contains(reason, "empty invocations") {
		t.Errorf("reason = %q, want empty invocations", reason)
	}
}

func TestStaleGuardRepeatedCalls(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	for i := 0; i < DefaultRepeatThreshold-1; i++ {
		g.Record("bash", json.RawMessage(`{"command":"git status"}`), false)
	}
	if stalled, _ := g.Stalled(); stalled {
		t.Fatal("stalled one repeat before the threshold")
	}

	g.Record("bash", json.RawMessage(`{"command":"git status"}`), false)
	stalled, reason := g.Stalled()
	if !stalled {
		t.Fatal("expected stall at the repeat threshold")
	}
	if !strings.Contains(reason, "repeated") {
		t.Errorf("reason = %q, want repeated", reason)
	}
}

func TestStaleGuardInterleavedRepeatsDoNotStall(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	// The same call recurring between distinct productive calls is a
	// legitimate pattern, not a loop; only an unbroken run may trip.
	for i := 0; i < 2*DefaultRepeatThreshold; i++ {
		g.Record("bash", json.RawMessage(`{"command":"ls"}`), false)
		g.Record("bash", json.RawMessage(fmt.Sprintf(`{"command":"echo step%d"}`, i)), false)
	}
	if stalled, reason := g.Stalled(); stalled {
		t.Fatalf("interleaved repeats stalled: %s", reason)
	}

	// A different call resets an in-progress run of repeats.
	for i := 0; i < DefaultRepeatThreshold-1; i++ {
		g.Record("bash", json.RawMessage(`{"command":"make"}`), false)
	}
	g.Record("read_file", json.RawMessage(`{"path":"/tmp/log"}`), false)
	g.Record("bash", json.RawMessage(`{"command":"make"}`), false)
	if stalled, reason := g.Stalled(); stalled {
		t.Fatalf("broken run of repeats stalled: %s", reason)
	}
}

func TestStaleGuardSignatureIgnoresKeyOrder(t *testing.T) {
	a := signature("bash", json.RawMessage(`{"command":"ls","timeout":5}`))
	b := signature("bash", json.RawMessage(`{"timeout":5,"command":"ls"}`))
	if a != b {
		t.Error("key order must not change the signature")
	}

	c := signature("bash", json.RawMessage(`{"command":"ls -l","timeout":5}`))
	if a == c {
		t.Error("different inputs must not collide")
	}
	if signature("bash", nil) == signature("read_file", nil) {
		t.Error("tool name must be part of the signature")
	}
}

func TestStaleGuardRingEvictsOldSignatures(t *testing.T) {
	g := NewStaleGuard(0, 0, 0)

	for i := 0; i < DefaultRepeatThreshold-1; i++ {
		g.Record("bash", json.RawMessage(`{"command":"git status"}`), false)
	}
	// Flush the ring with distinct calls.
	for i := 0; i < signatureRingSize; i++ {
		g.Record("read_file", json.RawMessage(fmt.Sprintf(`{"path":"/tmp/%d"}`, i)), false)
	}

	g.Record("bash", json.RawMessage(`{"command":"git status"}`), false)
	if stalled, _ := g.Stalled(); stalled {
		t.Fatal("evicted signatures must not count toward the repeat threshold")
	}
}

func TestStaleGuardCustomThresholds(t *testing.T) {
	g := NewStaleGuard(2, 0, 0)
	g.Record("bash", json.RawMessage(`{"command":"x"}`), true)
	g.Record("bash", json.RawMessage(`{"command":"y"}`), true)
	if stalled, _ := g.Stalled(); !stalled {
		t.Fatal("custom error threshold of 2 did not trip")
	}
}
