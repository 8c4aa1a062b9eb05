package expiry

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	sec := time.Second
	cases := []struct {
		name            string
		configuredLocal time.Duration
		remoteRemaining time.Duration
		defaultExpiry   time.Duration
		want            time.Duration
	}{
		{"both positive, local smaller", 5 * sec, 30 * sec, sec, 5 * sec},
		{"both positive, remote smaller", 30 * sec, 5 * sec, sec, 5 * sec},
		{"both positive, equal", 5 * sec, 5 * sec, sec, 5 * sec},
		{"only local positive", 5 * sec, 0, sec, 5 * sec},
		{"only remote positive", 0, 5 * sec, sec, 5 * sec},
		{"neither positive", 0, 0, sec, sec},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.configuredLocal, tc.remoteRemaining, tc.defaultExpiry)
			if got != tc.want {
				t.Errorf("Resolve(%v, %v, %v) = %v, want %v", tc.configuredLocal, tc.remoteRemaining, tc.defaultExpiry, got, tc.want)
			}
		})
	}
}

func TestResolveNeverOutlivesRemoteTTL(t *testing.T) {
	got := Resolve(time.Hour, 2*time.Second, time.Minute)
	if got != 2*time.Second {
		t.Fatalf("local TTL must be bounded by remote TTL: got %v", got)
	}
}
