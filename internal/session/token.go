// Package session issues and verifies the signed, expiring credentials that
// gate every document operation. Verification is stateless: a credential is
// valid iff its HS256 signature matches and the current time is before exp.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/maneesh/docsync/internal/apperr"
)

// TokenTTL is the validity window of an issued credential
const TokenTTL = 7 * 24 * time.Hour

// TokenService signs and verifies session credentials
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service bound to secret
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{
		secret: secret,
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// WithClock returns a copy of the service that reads time from now
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// Issue produces a credential for subjectID valid for TokenTTL
func (s *TokenService) Issue(subjectID string) (string, error) {
	return s.IssueWithTTL(subjectID, s.ttl)
}

// IssueWithTTL produces a credential with a custom validity window.
// Used by operator tooling that needs short-lived credentials.
func (s *TokenService) IssueWithTTL(subjectID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", apperr.New(apperr.Validation, "session.issue", "subject is required")
	}
	if ttl <= 0 {
		return "", apperr.New(apperr.Validation, "session.issue", "ttl must be positive")
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "session.issue", err)
	}
	return signed, nil
}

// Verify returns the subject bound to credential. ok is false for empty,
// malformed, tampered or expired input; Verify never panics.
func (s *TokenService) Verify(credential string) (subjectID string, ok bool) {
	if credential == "" {
		return "", false
	}
	defer func() {
		if recover() != nil {
			subjectID, ok = "", false
		}
	}()

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", false
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", false
	}
	// exp is exclusive
	if !s.now().Before(claims.ExpiresAt.Time) {
		return "", false
	}
	return claims.Subject, true
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return s.secret, nil
}
