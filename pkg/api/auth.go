package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/wildfly/wildfly-core-sub044/pkg/adduser"
)

// AuthConfig holds the credentials accepted by the API middleware.
type AuthConfig struct {
	// Realm is hashed into the stored password digests.
	Realm string
	// Users maps user names to HEX(MD5(user:realm:password)), as kept in
	// the realm's users file.
	Users   map[string]string
	APIKeys map[string]bool
}

// LoadAuthConfig reads the management realm users from dir.
func LoadAuthConfig(dir string) (*AuthConfig, error) {
	users, err := adduser.ReadUsers(dir, adduser.ManagementRealm)
	if err != nil {
		return nil, err
	}
	return &AuthConfig{Realm: adduser.ManagementRealm.Name, Users: users}, nil
}

// authMiddleware wraps an http.Handler with Basic Auth / Bearer / X-API-Key checks.
// Requests to /health and /metrics bypass authentication.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if auth := r.Header.Get("Authorization"); auth != "" {
			if checkAuthorization(auth, cfg) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if key := r.Header.Get("X-API-Key"); key != "" {
			if cfg.APIKeys[key] {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="`+cfg.Realm+`"`)
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "authentication required",
		})
	})
}

// checkAuthorization validates an Authorization header value.
func checkAuthorization(auth string, cfg AuthConfig) bool {
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return cfg.APIKeys[token]
	}

	encoded, ok := strings.CutPrefix(auth, "Basic ")
	if !ok {
		return false
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(payload), ":")
	if !ok {
		return false
	}
	expected, exists := cfg.Users[user]
	if !exists {
		return false
	}
	got := adduser.Hash(user, cfg.Realm, pass)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expected))) == 1
}
