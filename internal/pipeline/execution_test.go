package pipeline

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExecutionIDRoundTripsOwner(t *testing.T) {
	u := uuid.New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewExecutionID(u, at, "")
	b := NewExecutionID(u, at, "")
	if a == b {
		t.Fatalf("ids for the same instant collided")
	}
	owner, ok := ExecutionOwner(a)
	if !ok || owner != u {
		t.Fatalf("owner: got %v %v", owner, ok)
	}
	k1 := NewExecutionID(u, at, "client-key")
	k2 := NewExecutionID(u, at.Add(time.Hour), "client-key")
	if k1 != k2 {
		t.Fatalf("client key should make the id stable")
	}
	if owner, ok := ExecutionOwner(k1); !ok || owner != u {
		t.Fatalf("owner of keyed id: got %v %v", owner, ok)
	}
	if _, ok := ExecutionOwner("gen-nope"); ok {
		t.Fatalf("malformed id accepted")
	}
}

func TestParseRequestedCount(t *testing.T) {
	good := map[string]int{"10": 10, " 100 ": 100}
	for in, want := range good {
		got, err := ParseRequestedCount(json.RawMessage(in))
		if err != nil || got != want {
			t.Fatalf("%q: got %d err %v", in, got, err)
		}
	}
	for _, in := range []string{"10.5", `"10"`, "1e1", "null", "", "true"} {
		if _, err := ParseRequestedCount(json.RawMessage(in)); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestPolicyCostAndDelay(t *testing.T) {
	p := DefaultPolicy()
	if p.Cost(10) != 50 || FormatDollars(p.Cost(10)) != "$0.50" || FormatDollars(1000) != "$10.00" {
		t.Fatalf("unexpected cost arithmetic")
	}
	if p.PollDelay(10) != p.PollInterval {
		t.Fatalf("fixed delay expected by default")
	}
	p.PollBackoff = 2
	p.PollIntervalMax = 12 * time.Second
	if p.PollDelay(1) != 10*time.Second || p.PollDelay(5) != 12*time.Second {
		t.Fatalf("unexpected backoff: %v %v", p.PollDelay(1), p.PollDelay(5))
	}
}

func TestLoadPolicyOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/policy.yaml"
	if err := writeFile(path, "min_count: 5\nmax_count: 20\npoll_interval: 2s\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GENERATION_MAX_POLLS", "7")
	t.Setenv("PIPELINE_CONFIG_FILE", path)
	p, err := LoadPolicy()
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.MinCount != 5 || p.MaxCount != 20 || p.PollInterval != 2*time.Second || p.MaxPolls != 7 {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}
