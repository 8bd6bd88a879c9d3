package auth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// OperatorKeyHeader carries the shop operator's API key on operator-only routes.
const OperatorKeyHeader = "X-Operator-Key"

var ErrInvalidKey = errors.New("invalid operator key")

// OperatorKey verifies presented keys against a bcrypt hash of the operator secret.
type OperatorKey struct {
	hash []byte
}

// NewOperatorKey parses a bcrypt hash. An empty hash yields a verifier that rejects every key.
func NewOperatorKey(hash string) (*OperatorKey, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &OperatorKey{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &OperatorKey{hash: []byte(hash)}, nil
}

// HashKey is used by operators to produce OPERATOR_KEY_HASH values.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (k *OperatorKey) Verify(key string) error {
	if k == nil || len(k.hash) == 0 || key == "" {
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(k.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// Require wraps next so it only runs for requests carrying a valid operator key.
func (k *OperatorKey) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := k.Verify(strings.TrimSpace(r.Header.Get(OperatorKeyHeader))); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
