package chat

import "testing"

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		agent    string
		language string
		want     string
	}{
		{
			name:     "all fields present",
			addr:     "203.0.113.50",
			agent:    "Mozilla/5.0",
			language: "en-US",
			want:     "203.0.113.50|Mozilla/5.0|en-US",
		},
		{
			name: "all fields absent",
			want: "0.0.0.0|unknown|unknown",
		},
		{
			name:     "missing address only",
			agent:    "curl/8.0",
			language: "de",
			want:     "0.0.0.0|curl/8.0|de",
		},
		{
			name:  "missing agent and language",
			addr:  "10.0.0.1",
			want:  "10.0.0.1|unknown|unknown",
		},
		{
			name:     "whitespace counts as absent",
			addr:     "   ",
			agent:    "\t",
			language: " fr ",
			want:     "0.0.0.0|unknown|fr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.addr, tt.agent, tt.language); got != tt.want {
				t.Errorf("Fingerprint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	first := Fingerprint("", "", "")
	for range 10 {
		if got := Fingerprint("", "", ""); got != first {
			t.Fatalf("Fingerprint() not deterministic: %q != %q", got, first)
		}
	}
}
