package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dragonfly/pkg/models"
)

// UserLookup resolves a user id to a full identity.
type UserLookup interface {
	User(id string) (models.User, error)
}

// TokenConfig configures bearer token verification.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// TokenResolver verifies HS256 bearer tokens and resolves their subject.
type TokenResolver struct {
	cfg   TokenConfig
	users UserLookup
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role,omitempty"`
}

// NewTokenResolver builds a resolver. The secret must be non-empty.
func NewTokenResolver(cfg TokenConfig, users UserLookup) (*TokenResolver, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &TokenResolver{cfg: cfg, users: users}, nil
}

// Resolve verifies token and returns the directory identity of its subject.
// Every failure collapses to ErrNotAuthenticated.
func (r *TokenResolver) Resolve(token string) (models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.User{}, ErrNotAuthenticated
	}

	var claims sessionClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	user, err := r.users.User(claims.Subject)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	// A role change in the directory invalidates older tokens.
	if claims.Role != "" && claims.Role != user.Role {
		return models.User{}, fmt.Errorf("%w: role changed", ErrNotAuthenticated)
	}
	return user, nil
}

// IssueToken mints a signed token for user. Used by the dev CLI and tests.
func (r *TokenResolver) IssueToken(user models.User) (string, error) {
	now := r.cfg.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    r.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.cfg.TTL)),
		},
		Role: user.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
