package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader is the alternative to "Authorization: Bearer <key>".
const APIKeyHeader = "X-API-Key"

// HashKey returns the SHA-256 digest of a raw API key.
func HashKey(raw string) [sha256.Size]byte {
	return sha256.Sum256([]byte(raw))
}

// APIKey rejects requests that do not present one of keys, unless exempt
// reports true for them. An empty key list disables the check. Keys are
// held and compared as hashes so comparison time does not depend on the
// presented key.
func APIKey(keys []string, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
	hashes := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, HashKey(k))
		}
	}
	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt != nil && exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			presented := HashKey(key)
			for _, h := range hashes {
				if subtle.ConstantTimeCompare(presented[:], h[:]) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnauthorized, "invalid api key")
		})
	}
}

// ReadOnly exempts health checks, metrics and every GET or HEAD request.
func ReadOnly(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead || HealthOnly(r)
}

// HealthOnly exempts health checks and metrics.
func HealthOnly(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics"
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get(APIKeyHeader)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
