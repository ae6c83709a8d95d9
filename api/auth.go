package api

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"postforge/core"
	"postforge/logging"
)

// CodeUnauthorized is returned when an API key is missing or wrong.
const CodeUnauthorized = "UNAUTHORIZED"

// ErrEmptyKey is returned when hashing an empty key.
var ErrEmptyKey = errors.New("api key cannot be empty")

// maxVerifiedKeys bounds the cache of keys that already passed bcrypt.
const maxVerifiedKeys = 64

// HashAPIKey returns the bcrypt hash to put in API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// keyVerifier checks keys against one bcrypt hash. Keys that matched once
// are remembered by digest so bcrypt runs once per key, not per request.
type keyVerifier struct {
	hash []byte

	mu       sync.Mutex
	verified map[[sha256.Size]byte]struct{}
}

func newKeyVerifier(hash string) (*keyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("api: API key hash is not a bcrypt hash: %w", err)
	}
	return &keyVerifier{hash: []byte(hash), verified: make(map[[sha256.Size]byte]struct{})}, nil
}

func (v *keyVerifier) verify(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))

	v.mu.Lock()
	_, ok := v.verified[sum]
	v.mu.Unlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(v.hash, []byte(key)) != nil {
		return false
	}

	v.mu.Lock()
	if len(v.verified) >= maxVerifiedKeys {
		v.verified = make(map[[sha256.Size]byte]struct{})
	}
	v.verified[sum] = struct{}{}
	v.mu.Unlock()
	return true
}

// requestKey reads "Authorization: Bearer <key>" or X-API-Key.
func requestKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// requireAPIKey rejects requests without a matching key. A nil verifier
// disables the check.
func requireAPIKey(v *keyVerifier, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.verify(requestKey(r)) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="postforge"`)
				respondPayload(w, r, logger, http.StatusUnauthorized, core.ErrorPayload{
					Code: CodeUnauthorized, Message: "missing or invalid API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
