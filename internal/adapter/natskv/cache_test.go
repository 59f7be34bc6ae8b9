package natskv

import (
	"testing"
	"time"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"recommendations:cust_1", "recommendations.cust_1"},
		{"usage_trends:cust_1:90", "usage_trends.cust_1.90"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := encodeKey(tt.in); got != tt.want {
			t.Errorf("encodeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	data, err := encodeEnvelope([]byte("profile"), 5*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}

	value, ok, err := decodeEnvelope(data, now.Add(4*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry expired before its TTL")
	}
	if string(value) != "profile" {
		t.Fatalf("value = %q, want profile", value)
	}
}

func TestEnvelopeExpiresPerKey(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	data, err := encodeEnvelope([]byte("profile"), 5*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}

	// Past the per-key TTL the entry is a miss even though the bucket
	// would keep it for hours.
	_, ok, err := decodeEnvelope(data, now.Add(6*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("entry should have expired after its own TTL")
	}
}

func TestEnvelopeWithoutTTL(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	data, err := encodeEnvelope([]byte("v"), 0, now)
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := decodeEnvelope(data, now.Add(1000*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry without its own TTL is bounded by the bucket only")
	}
}

func TestEnvelopeRejectsGarbage(t *testing.T) {
	if _, _, err := decodeEnvelope([]byte("not json"), time.Now()); err == nil {
		t.Fatal("expected decode error")
	}
}
