package webhook

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "webhook-token"
	testSecret = "hmac-secret"
)

func newTestAuthenticator(t *testing.T, now time.Time) *Authenticator {
	t.Helper()
	a := NewAuthenticator(Options{Token: testToken, Secret: testSecret, Tolerance: 5 * time.Minute})
	a.now = func() time.Time { return now }
	return a
}

func signedHeader(body []byte, ts int64) Header {
	return Header{
		Token:     testToken,
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: Sign(body, ts, testSecret),
	}
}

func TestAuthorizeAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)

	body := []byte(`{"deal_id":42,"amount":"100.00","currency":"RUB"}`)
	res := a.Authorize(body, signedHeader(body, now.Unix()))

	require.True(t, res.OK, "expected authorization to succeed, got %s", res.Code)
	assert.Equal(t, now.Unix(), res.Timestamp.Unix())
}

func TestAuthorizeAcceptsPrefixedUppercaseSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)

	body := []byte(`{"deal_id":1}`)
	hdr := signedHeader(body, now.Unix())
	hdr.Signature = "sha256=" + strings.ToUpper(hdr.Signature)

	res := a.Authorize(body, hdr)
	require.True(t, res.OK, "prefixed upper-case signature should be accepted, got %s", res.Code)
}

func TestAuthorizeTokenFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)

	t.Run("wrong token", func(t *testing.T) {
		a := newTestAuthenticator(t, now)
		hdr := signedHeader(body, now.Unix())
		hdr.Token = "not-the-token"
		res := a.Authorize(body, hdr)
		require.False(t, res.OK)
		assert.Equal(t, CodeTokenInvalid, res.Code)
	})

	t.Run("no configured token", func(t *testing.T) {
		a := NewAuthenticator(Options{Secret: testSecret})
		a.now = func() time.Time { return now }
		hdr := signedHeader(body, now.Unix())
		hdr.Token = ""
		res := a.Authorize(body, hdr)
		require.False(t, res.OK)
		assert.Equal(t, CodeTokenInvalid, res.Code)
	})
}

func TestAuthorizeMissingHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)
	body := []byte(`{}`)

	for _, hdr := range []Header{
		{Token: testToken, Signature: "abc"},
		{Token: testToken, Timestamp: "123"},
	} {
		res := a.Authorize(body, hdr)
		require.False(t, res.OK)
		assert.Equal(t, CodeHeadersMissing, res.Code)
		assert.True(t, res.Code.Structural())
	}
}

func TestAuthorizeTimestampFormat(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)
	body := []byte(`{}`)

	for _, ts := range []string{"-5", "12.5", "12a", "0x10"} {
		hdr := Header{Token: testToken, Timestamp: ts, Signature: "deadbeef"}
		res := a.Authorize(body, hdr)
		require.False(t, res.OK, "timestamp %q should be rejected", ts)
		assert.Equal(t, CodeTimestampInvalid, res.Code)
	}
}

func TestAuthorizeRejectsExpiredTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)

	body := []byte(`{"deal_id":7}`)
	old := now.Add(-6 * time.Minute).Unix()
	res := a.Authorize(body, signedHeader(body, old))

	require.False(t, res.OK, "correctly signed but expired request must be rejected")
	assert.Equal(t, CodeTimestampExpired, res.Code)
}

func TestAuthorizeRejectsFutureTimestampBeyondTolerance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)

	body := []byte(`{}`)
	future := now.Add(10 * time.Minute).Unix()
	res := a.Authorize(body, signedHeader(body, future))

	require.False(t, res.OK)
	assert.Equal(t, CodeTimestampExpired, res.Code)
}

func TestAuthorizeRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := newTestAuthenticator(t, now)

	body := []byte(`{"deal_id":42,"amount":"100.00"}`)
	hdr := signedHeader(body, now.Unix())

	tampered := []byte(`{"deal_id":42,"amount":"999.00"}`)
	res := a.Authorize(tampered, hdr)

	require.False(t, res.OK)
	assert.Equal(t, CodeSignatureInvalid, res.Code)
}
