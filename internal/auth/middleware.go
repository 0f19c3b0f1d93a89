// Package auth provides HTTP middleware for bearer token authentication of
// the MCP endpoint.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const challenge = `Bearer realm="magicbell-feed"`

// NewAuthMiddleware returns an HTTP middleware that enforces bearer token
// authentication against any of tokens. Empty tokens are ignored; if none
// remain, authentication is disabled and all requests pass through.
//
// When enabled, the request must carry
//
//	Authorization: Bearer <token>
//
// with a case-sensitive "Bearer" prefix followed by exactly one space.
// Anything else gets a 401 with a WWW-Authenticate challenge and the next
// handler is never called.
func NewAuthMiddleware(logger zerolog.Logger, tokens ...string) func(http.Handler) http.Handler {
	accepted := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			accepted = append(accepted, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(accepted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !matchAny(accepted, provided) {
				logger.Debug().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("rejected unauthenticated request")
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) ([]byte, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	token := header[len(prefix):]
	if token == "" {
		return nil, false
	}
	return []byte(token), true
}

// matchAny compares provided against every accepted token in constant time.
func matchAny(accepted [][]byte, provided []byte) bool {
	found := 0
	for _, t := range accepted {
		found |= subtle.ConstantTimeCompare(t, provided)
	}
	return found == 1
}
