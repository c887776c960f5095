package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPaths are reachable without a bearer token even when auth is on.
// Health probes and the metrics scraper do not carry credentials.
var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Auth enforces bearer-token authentication. The tokens argument is a
// comma-separated list; any listed token is accepted. An empty list
// disables authentication entirely.
func Auth(tokens string) func(http.Handler) http.Handler {
	var valid []string
	for _, t := range strings.Split(tokens, ",") {
		if t = strings.TrimSpace(t); t != "" {
			valid = append(valid, t)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			presented := extractBearerToken(r)
			if presented == "" || !tokenValid(valid, presented) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"missing or invalid bearer token","code":"UNAUTHORIZED"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		return ""
	}
	return strings.TrimSpace(token)
}

func tokenValid(valid []string, presented string) bool {
	ok := false
	for _, v := range valid {
		if subtle.ConstantTimeCompare([]byte(v), []byte(presented)) == 1 {
			ok = true
		}
	}
	return ok
}
