package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := writePolicy(t, "call1_first: 30m\ncall1_second: 90m\ncall3_delay: 48h\n")

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.Call1First != 30*time.Minute || policy.Call1Second != 90*time.Minute {
		t.Fatalf("overrides not applied: %+v", policy)
	}
	if policy.Call3Delay != 48*time.Hour {
		t.Fatalf("call3_delay = %v, want 48h", policy.Call3Delay)
	}
	if policy.Call1Escalation != 12*time.Hour {
		t.Fatalf("untouched field lost its default: %v", policy.Call1Escalation)
	}
}

func TestLoadPolicyEmptyPathIsDefault(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy != DefaultPolicy() {
		t.Fatalf("policy = %+v, want defaults", policy)
	}
}

func TestLoadPolicyRejectsBadDuration(t *testing.T) {
	path := writePolicy(t, "call2_delay: quickly\n")
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("invalid duration must be rejected")
	}
}

func TestLoadPolicyRejectsUnorderedCall1(t *testing.T) {
	path := writePolicy(t, "call1_first: 3h\ncall1_second: 2h\n")
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("non-increasing call1 offsets must be rejected")
	}
}
