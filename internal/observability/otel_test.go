package observability

import (
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken, =x,team=img")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "img" {
		t.Fatalf("headers: %#v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty should be nil")
	}
}

func TestSampleRatioClamps(t *testing.T) {
	cases := map[string]float64{"": 0.1, "junk": 0.1, "-1": 0, "2": 1, "0.25": 0.25}
	for in, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", in)
		if got := sampleRatio(); got != want {
			t.Fatalf("%q: want %v got %v", in, want, got)
		}
	}
}
