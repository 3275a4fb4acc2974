package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the API credentials used to sign requests to the custody
// service.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the HTTP headers for a custody API request.
// The signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded
// as base64.
//
// Returned header keys:
//   - X-MARKETD-KEY
//   - X-MARKETD-TIMESTAMP
//   - X-MARKETD-SIGNATURE
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"X-MARKETD-KEY":       h.Key,
		"X-MARKETD-TIMESTAMP": ts,
		"X-MARKETD-SIGNATURE": Sign(h.Secret, ts+method+path+body),
	}
}

// Verify reports whether sig is the signature of the given request parts.
func (h *HMACAuth) Verify(method, path, body, ts, sig string) bool {
	want := Sign(h.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Sign computes HMAC-SHA256 of message using secret and returns the result as
// a base64 standard-encoded string.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
