// Package webhook decides authenticity and freshness of inbound events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ReasonCode is a stable machine-readable authorization failure code.
type ReasonCode string

const (
	CodeTokenInvalid     ReasonCode = "AUTH_TOKEN_INVALID"
	CodeHeadersMissing   ReasonCode = "AUTH_HEADERS_MISSING"
	CodeTimestampInvalid ReasonCode = "AUTH_TIMESTAMP_INVALID"
	CodeTimestampExpired ReasonCode = "AUTH_TIMESTAMP_EXPIRED"
	CodeSignatureInvalid ReasonCode = "AUTH_SIGNATURE_INVALID"
)

// Structural reports whether the failure is a malformed request rather than a
// credential mismatch. The HTTP boundary maps structural failures to 400.
func (c ReasonCode) Structural() bool {
	return c == CodeHeadersMissing || c == CodeTimestampInvalid
}

// Header carries the three authentication headers of an inbound event.
type Header struct {
	Token     string
	Timestamp string
	Signature string
}

// Result is the tagged outcome of an authorization check. When OK is true,
// Timestamp holds the event's logical version.
type Result struct {
	OK        bool
	Timestamp time.Time
	Code      ReasonCode
}

// Options hold the shared credentials and the replay tolerance window.
type Options struct {
	Token     string
	Secret    string
	Tolerance time.Duration
}

// Authenticator validates inbound webhook requests. All secret comparisons
// are constant time.
type Authenticator struct {
	opts Options
	now  func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(opts Options) *Authenticator {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 5 * time.Minute
	}
	return &Authenticator{opts: opts, now: time.Now}
}

// Authorize runs the validation ladder over the verbatim request body and the
// supplied headers. The first failing step wins.
func (a *Authenticator) Authorize(body []byte, hdr Header) Result {
	if a.opts.Token == "" || !hmac.Equal([]byte(a.opts.Token), []byte(hdr.Token)) {
		return Result{Code: CodeTokenInvalid}
	}

	if hdr.Timestamp == "" || hdr.Signature == "" {
		return Result{Code: CodeHeadersMissing}
	}

	if !isDigits(hdr.Timestamp) {
		return Result{Code: CodeTimestampInvalid}
	}
	ts, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return Result{Code: CodeTimestampInvalid}
	}

	now := a.now().Unix()
	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > a.opts.Tolerance {
		return Result{Code: CodeTimestampExpired}
	}

	computed := Sign(body, ts, a.opts.Secret)
	provided := normalizeSignature(hdr.Signature)
	if provided == "" || !hmac.Equal([]byte(computed), []byte(provided)) {
		return Result{Code: CodeSignatureInvalid}
	}

	return Result{OK: true, Timestamp: time.Unix(ts, 0).UTC()}
}

// Sign computes the lower-case hex HMAC-SHA256 signature of
// "{timestamp}.{body}" under the shared secret.
func Sign(body []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeSignature strips an optional "algorithm=value" prefix and
// lower-cases the hex digest.
func normalizeSignature(sig string) string {
	if idx := strings.IndexByte(sig, '='); idx >= 0 {
		sig = sig[idx+1:]
	}
	return strings.ToLower(strings.TrimSpace(sig))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
