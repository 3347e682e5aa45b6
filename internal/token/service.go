// Package token issues and verifies signed session tokens scoped to a
// realm's secret. Signing is synchronous HS256; no state is kept between
// calls, so a single Service serves every realm.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/obs"
	"realmgate.org/internal/realm"
)

const (
	// TypeAccess marks short-lived session tokens.
	TypeAccess = "access"
	// TypeRefresh marks tokens exchangeable for a fresh pair.
	TypeRefresh = "refresh"
)

// Claims are the verified contents of a realm token.
type Claims struct {
	RealmUUID string `json:"realm"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair bundles the two tokens issued on login or refresh.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Service signs and verifies tokens. The zero value is not usable; use
// NewService.
type Service struct {
	issuer string
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(opts ...Option) *Service {
	s := &Service{issuer: "realmgate", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueAccessToken signs an access token for the subject using the
// realm's secret and configured access TTL.
func (s *Service) IssueAccessToken(r realm.Realm, subject string) (string, time.Time, error) {
	return s.issue(r, subject, TypeAccess, ttlOrDefault(r.Signing.AccessTokenTTL, realm.DefaultAccessTTL))
}

// IssueRefreshToken signs a refresh token for the subject using the
// realm's secret and configured refresh TTL.
func (s *Service) IssueRefreshToken(r realm.Realm, subject string) (string, time.Time, error) {
	return s.issue(r, subject, TypeRefresh, ttlOrDefault(r.Signing.RefreshTokenTTL, realm.DefaultRefreshTTL))
}

// IssuePair mints an access+refresh pair in one call.
func (s *Service) IssuePair(r realm.Realm, subject string) (Pair, error) {
	access, accessExp, err := s.IssueAccessToken(r, subject)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(r, subject)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) issue(r realm.Realm, subject, tokenType string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", iamerr.ErrInvalidInput)
	}
	if r.Signing.Secret == "" {
		return "", time.Time{}, fmt.Errorf("%w: realm %s has no signing secret", iamerr.ErrInternal, r.PublicUUID)
	}

	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RealmUUID: r.PublicUUID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.Signing.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	obs.ObserveTokenIssued(tokenType)
	return signed, exp, nil
}

// Verify checks an access token against the realm's secret. Every failure
// mode collapses into ErrUnauthorized so callers cannot probe for the
// cause.
func (s *Service) Verify(r realm.Realm, token string) (*Claims, error) {
	return s.verify(r, token, TypeAccess)
}

// Refresh verifies the supplied refresh token and issues a fresh pair.
// The old refresh token stays valid until its natural expiry; there is no
// revocation list.
func (s *Service) Refresh(r realm.Realm, refreshToken string) (Pair, error) {
	claims, err := s.verify(r, refreshToken, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}
	return s.IssuePair(r, claims.Subject)
}

func (s *Service) verify(r realm.Realm, token, wantType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || r.Signing.Secret == "" {
		return nil, iamerr.ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, iamerr.ErrUnauthorized
		}
		return []byte(r.Signing.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, iamerr.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, iamerr.ErrUnauthorized
	}
	if claims.TokenType != wantType {
		return nil, iamerr.ErrUnauthorized
	}
	if claims.RealmUUID != r.PublicUUID {
		return nil, iamerr.ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, iamerr.ErrUnauthorized
	}
	return claims, nil
}

func ttlOrDefault(ttl, fallback time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return fallback
}
