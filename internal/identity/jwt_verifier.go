package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lumahq/lumina/internal/config"
	"go.uber.org/zap"
)

const verificationTTL = 30 * time.Second

type claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Privileged bool   `json:"privileged"`
}

// JWTVerifier validates HS256 tokens issued by the auth provider with a
// shared secret. Verified results are cached briefly to keep the hot path
// off the crypto.
type JWTVerifier struct {
	secret []byte
	log    *zap.Logger
	cache  *TTLCache[string, Identity]
}

func NewJWTVerifier(cfg config.Config, log *zap.Logger) (Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, errors.New("auth jwt secret is not configured")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		log:    log.Named("identity"),
		cache:  NewTTLCache[string, Identity](),
	}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	if cached, ok := v.cache.Get(token); ok {
		return cached, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || strings.TrimSpace(cl.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{
		UserID:     cl.Subject,
		Email:      cl.Email,
		Privileged: cl.Privileged,
	}
	v.cache.Set(token, id, verificationTTL)
	return id, nil
}
