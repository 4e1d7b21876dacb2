package messenger

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

const SignatureHeader = "X-Hub-Signature"

var (
	ErrMissingSignature = errors.New("messenger: missing request signature")
	ErrInvalidSignature = errors.New("messenger: request signature mismatch")
)

// VerifySignature checks an "sha1=<hex>" header against the HMAC-SHA1 of
// body keyed by appSecret.
func VerifySignature(appSecret, header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	method, hash, ok := strings.Cut(header, "=")
	if !ok || method != "sha1" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(hash)
	if err != nil {
		return ErrInvalidSignature
	}

	if !hmac.Equal(got, Sign(appSecret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA1 of body.
func Sign(appSecret string, body []byte) []byte {
	mac := hmac.New(sha1.New, []byte(appSecret))
	mac.Write(body)
	return mac.Sum(nil)
}
