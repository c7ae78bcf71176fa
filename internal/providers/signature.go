package providers

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Verifier checks that a webhook body was sent by the gateway. A missing or
// malformed signature is reported as false, never as an error.
type Verifier interface {
	Verify(signature string, body []byte) bool
}

// PayloadHMAC verifies hex(HMAC-SHA512(secret, body)) computed over the raw
// request bytes. The header must match the lowercase hex digest exactly.
type PayloadHMAC struct {
	Secret string
}

// Sign returns the signature the gateway would send for body.
func (v PayloadHMAC) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(v.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v PayloadHMAC) Verify(signature string, body []byte) bool {
	if v.Secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(v.Sign(body)))
}

// StaticTokenDigest verifies hex(SHA-512(token + businessCode)). The digest
// does not depend on the body, so every event carries the same signature.
type StaticTokenDigest struct {
	expected []byte
}

// NewStaticTokenDigest precomputes the digest. An empty token or business
// code yields a verifier that rejects everything.
func NewStaticTokenDigest(token, businessCode string) StaticTokenDigest {
	if token == "" || businessCode == "" {
		return StaticTokenDigest{}
	}
	sum := sha512.Sum512([]byte(token + businessCode))
	return StaticTokenDigest{expected: []byte(hex.EncodeToString(sum[:]))}
}

// Signature returns the digest the gateway sends, or "" when unconfigured.
func (v StaticTokenDigest) Signature() string {
	return string(v.expected)
}

func (v StaticTokenDigest) Verify(signature string, _ []byte) bool {
	if len(v.expected) == 0 || signature == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(signature)), v.expected) == 1
}
