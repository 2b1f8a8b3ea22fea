package lockval

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	v, err := Encode("W1", "tok-123", at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if v != "W1:tok-123:1700000000" {
		t.Fatalf("unexpected encoding %q", v)
	}
	p, err := Decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Owner != "W1" || p.Token != "tok-123" || p.Legacy {
		t.Fatalf("unexpected payload %+v", p)
	}
	if !p.AcquiredAt.Equal(at) {
		t.Fatalf("acquired at %v, want %v", p.AcquiredAt, at)
	}
}

func TestDecodeLegacy(t *testing.T) {
	p, err := Decode("W1:tok-123")
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if p.Owner != "W1" || p.Token != "tok-123" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if !p.Legacy {
		t.Fatal("expected legacy payload")
	}
	if !p.AcquiredAt.IsZero() {
		t.Fatalf("legacy payload must carry no timestamp, got %v", p.AcquiredAt)
	}
	if _, known := p.Age(time.Now()); known {
		t.Fatal("legacy age must be unknown")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, v := range []string{
		"",
		"justowner",
		"a:b:c:d",
		"a:b:notatime",
		":token",
		"owner:",
		"::1700000000",
	} {
		if _, err := Decode(v); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", v, err)
		}
	}
}

func TestEncodeRejectsBadFields(t *testing.T) {
	if _, err := Encode("w:1", "tok", time.Now()); !errors.Is(err, ErrBadField) {
		t.Fatalf("expected ErrBadField for owner with separator, got %v", err)
	}
	if _, err := Encode("w1", "to:k", time.Now()); !errors.Is(err, ErrBadField) {
		t.Fatalf("expected ErrBadField for token with separator, got %v", err)
	}
	if _, err := Encode("", "tok", time.Now()); !errors.Is(err, ErrBadField) {
		t.Fatalf("expected ErrBadField for empty owner, got %v", err)
	}
}

func TestAge(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := Payload{Owner: "w", Token: "t", AcquiredAt: now.Add(-25 * time.Hour)}
	age, known := p.Age(now)
	if !known {
		t.Fatal("expected known age")
	}
	if age != 25*time.Hour {
		t.Fatalf("age %v, want 25h", age)
	}
}
