package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Headers set on every solve callback.
const (
	EventHeader     = "X-Event-Type"
	SolveHeader     = "X-Solve-Id"
	SignatureHeader = "X-Signature"
)

// DefaultTolerance is how far a callback timestamp may drift from the
// receiver's clock before Verify rejects it.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMalformedSignature = errors.New("webhooks: malformed signature header")
	ErrSignatureMismatch  = errors.New("webhooks: signature mismatch")
	ErrSignatureExpired   = errors.New("webhooks: signature timestamp outside tolerance")
)

// Sign returns the signature header value for a callback sent at ts:
// "t=<unix seconds>,v1=<hex HMAC-SHA256 of "<t>.<solveID>.<body>">".
// Binding the solve id and the timestamp stops a captured callback from
// being replayed later or under another solve.
func Sign(secret, solveID string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac(secret, t, solveID, body))
}

// Verify checks a signature header produced by Sign. A zero tolerance skips
// the timestamp check.
func Verify(secret, solveID string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	var t, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			t = v
		case "v1":
			v1 = v
		}
	}
	sec, err := strconv.ParseInt(t, 10, 64)
	if err != nil || v1 == "" {
		return ErrMalformedSignature
	}
	got, err := hex.DecodeString(v1)
	if err != nil {
		return ErrMalformedSignature
	}
	if !hmac.Equal(mac(secret, t, solveID, body), got) {
		return ErrSignatureMismatch
	}
	if tolerance > 0 {
		if d := now.Sub(time.Unix(sec, 0)); d > tolerance || d < -tolerance {
			return ErrSignatureExpired
		}
	}
	return nil
}

func mac(secret, t, solveID string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(t))
	h.Write([]byte{'.'})
	h.Write([]byte(solveID))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}
