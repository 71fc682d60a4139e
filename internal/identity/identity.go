package identity

import (
	"context"
	"errors"
	"strings"
)

// Identity is the verified principal supplied by the external auth provider.
// This service trusts it and performs no further verification of its own.
type Identity struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Privileged bool   `json:"privileged"`
}

// Verifier resolves a signed identity token to a verified Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrMissingToken = errors.New("missing_token")
)

// FromBearer extracts the raw token from an Authorization header value.
func FromBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
