package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"postflow/internal/api"
)

const bearerPrefix = "Bearer "

// authMiddleware guards an API handler with a shared bearer token.
// An empty token leaves the handler open, which is the loopback default.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	expected := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r.Header.Get("Authorization"), expected) {
			rejectUnauthorized(w)
			return
		}
		next(w, r)
	}
}

func bearerMatches(header string, expected []byte) bool {
	presented, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), expected) == 1
}

func rejectUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="postflow"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "missing or invalid bearer token", Kind: "unauthorized"})
}
