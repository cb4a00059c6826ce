package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestRedisLimiterWindowKey(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		want   string
	}{
		{"custom prefix", "liuren", "liuren:c:10.0.0.9:1700000000"},
		{"blank prefix falls back", "   ", "oracleops:rl:c:10.0.0.9:1700000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewRedisLimiter(nil, tc.prefix)
			if got := l.windowKey(ClientKey("10.0.0.9"), 1700000000); got != tc.want {
				t.Fatalf("windowKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestScriptCount(t *testing.T) {
	for _, raw := range []any{int64(3), int(3), uint64(3)} {
		hits, err := scriptCount(raw)
		if err != nil || hits != 3 {
			t.Fatalf("scriptCount(%T) = %d, %v", raw, hits, err)
		}
	}
	if _, err := scriptCount("3"); err == nil {
		t.Fatal("expected error for a string reply")
	}
}

func TestRedisLimiterNilClientAllows(t *testing.T) {
	l := NewRedisLimiter(nil, "")
	result, err := l.Allow(context.Background(), ClientKey("10.0.0.9"), 5, time.Unix(1_700_000_000, 0))
	if err != nil || !result.Allowed {
		t.Fatalf("nil client must allow, got %+v, %v", result, err)
	}
}
