package session

import (
	"fmt"
	"time"

	"kitchenhero/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the decoded claim set of a valid access token.
type AccessClaims struct {
	Subject   string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
	TokenID   string
}

// AccessTokenIssuer issues and validates short-lived access tokens.
// Validate never touches storage; routine failures are reported as false.
type AccessTokenIssuer interface {
	Issue(subject string, now time.Time) (token string, exp time.Time, err error)
	Validate(token string, now time.Time) (AccessClaims, bool)
}

type jwtIssuer struct {
	key       []byte
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
}

// NewJWTIssuer builds an AccessTokenIssuer signing HS256 JWTs with cfg.SigningKey.
// A missing or short key, or empty issuer/audience, is ErrMisconfiguration.
func NewJWTIssuer(cfg Config) (AccessTokenIssuer, error) {
	key, err := token.CheckKey(cfg.SigningKey, MinKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: signing key: %w", ErrMisconfiguration, err)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrMisconfiguration)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrMisconfiguration)
	}
	return &jwtIssuer{
		key:       key,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (m *jwtIssuer) Issue(subject string, now time.Time) (string, time.Time, error) {
	// JWT dates have second precision; truncate so exp matches the claim exactly.
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(m.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-m.clockSkew)),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign access token: %w", err)
	}
	return signed, exp, nil
}

func (m *jwtIssuer) Validate(tokenStr string, now time.Time) (AccessClaims, bool) {
	if tokenStr == "" {
		return AccessClaims{}, false
	}

	// Build a parser per call: the time function is bound to now.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims jwt.RegisteredClaims
	tok, err := p.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil || !tok.Valid {
		return AccessClaims{}, false
	}
	if claims.Subject == "" {
		return AccessClaims{}, false
	}

	out := AccessClaims{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: m.audience,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.UTC()
	}
	if claims.NotBefore != nil {
		out.NotBefore = claims.NotBefore.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return out, true
}
