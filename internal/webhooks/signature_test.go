package webhooks

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"solveId":"run1","status":"done"}`)
	sent := time.Unix(1700000000, 0)
	hdr := Sign("secret", "run1", body, sent)
	if !strings.HasPrefix(hdr, "t=1700000000,v1=") {
		t.Fatalf("header %q", hdr)
	}

	cases := []struct {
		name    string
		secret  string
		solveID string
		body    []byte
		header  string
		now     time.Time
		want    error
	}{
		{"ok", "secret", "run1", body, hdr, sent.Add(time.Minute), nil},
		{"wrong secret", "other", "run1", body, hdr, sent, ErrSignatureMismatch},
		{"other solve", "secret", "run2", body, hdr, sent, ErrSignatureMismatch},
		{"tampered body", "secret", "run1", []byte(`{"solveId":"run1","status":"failed"}`), hdr, sent, ErrSignatureMismatch},
		{"replayed late", "secret", "run1", body, hdr, sent.Add(time.Hour), ErrSignatureExpired},
		{"bare hex", "secret", "run1", body, strings.TrimPrefix(hdr, "t=1700000000,v1="), sent, ErrMalformedSignature},
		{"no timestamp", "secret", "run1", body, "v1=00", sent, ErrMalformedSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.secret, tc.solveID, tc.body, tc.header, tc.now, DefaultTolerance)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Verify = %v, want %v", err, tc.want)
			}
		})
	}
	if err := Verify("secret", "run1", body, hdr, sent.Add(24*time.Hour), 0); err != nil {
		t.Fatalf("zero tolerance should skip the clock check: %v", err)
	}
}
