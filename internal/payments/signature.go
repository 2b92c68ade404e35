package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeoahs/marketplace/internal/domain"
)

// SignatureHeader carries the gateway's signature over the raw payload,
// in the form "t=<unix seconds>,v1=<hex hmac-sha256>". The MAC covers
// "<t>.<payload>" so the timestamp cannot be swapped under an old
// signature.
const SignatureHeader = "X-Gateway-Signature"

// Sign produces a signature header value for payload. Used by tests and
// the seed generator to emulate the gateway.
func Sign(payload []byte, secret string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	mac := computeMAC(payload, secret, t)
	return fmt.Sprintf("t=%s,v1=%s", t, mac)
}

// VerifySignature checks the header against the raw payload. Any failure
// is ErrInvalidSignature: verification is a hard security boundary, and
// an event that fails it never reaches state-transition logic.
func VerifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", domain.ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrInvalidSignature)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}

	expected := computeMAC(payload, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: mac mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

func computeMAC(payload []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
