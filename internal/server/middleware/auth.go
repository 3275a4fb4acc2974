package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards operator routes (resolve, archives) with a shared API key sent
// as "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty apiKey
// disables the check; startup warns about that.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(apiKey))
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := presentedKey(r)
			if !found {
				w.Header().Set("WWW-Authenticate", `Bearer realm="marketd"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}
			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) (string, bool) {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	return key, key != ""
}

// writeJSONError matches the handler package's error body.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
