package server

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MsgNotAuthorized is the body of every rejected request.
const MsgNotAuthorized = "Not authorized"

// RequireToken returns middleware that accepts HTTP Basic credentials whose
// password equals one of tokens. The username is ignored.
func RequireToken(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, password, ok := r.BasicAuth()
			if !ok || !tokenAccepted(tokens, password) {
				slog.Warn(fmt.Sprintf("%s - rejected %s %s from %s", logPrefix, r.Method, r.URL.Path, r.RemoteAddr))
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, MsgNotAuthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenAccepted compares candidate against every token so timing does not
// reveal which one matched.
func tokenAccepted(tokens []string, candidate string) bool {
	if candidate == "" {
		return false
	}
	matched := 0
	for _, t := range tokens {
		matched |= subtle.ConstantTimeCompare([]byte(candidate), []byte(t))
	}
	return matched == 1
}
