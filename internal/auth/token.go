package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
)

// ErrSubjectMismatch is returned when a token was issued to another user.
var ErrSubjectMismatch = errors.New("token subject does not match")

// Claims is the claim set of both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Username returns the sub claim.
func (c *Claims) Username() string {
	return c.Subject
}

// TokenManager signs and verifies HS256 tokens with one process-wide key.
type TokenManager struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(secret, issuer string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// IssuePair creates an access and a refresh token for username.
func (m *TokenManager) IssuePair(username string) (*domain.TokenPair, error) {
	access, err := m.IssueAccess(username)
	if err != nil {
		return nil, err
	}
	refresh, err := m.issue(username, m.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess creates an access token for username.
func (m *TokenManager) IssueAccess(username string) (string, error) {
	token, err := m.issue(username, m.accessExpiry)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (m *TokenManager) issue(username string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	return m.sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
}

func (m *TokenManager) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}

// Parse checks the signature, issuer and expiry of tokenString.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("parse token: missing subject")
	}
	return claims, nil
}

// Verify parses tokenString and checks that it was issued to username.
func (m *TokenManager) Verify(tokenString, username string) (*Claims, error) {
	claims, err := m.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != username {
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}

// ExtractUsername returns the subject of an authentic token without looking
// at its time-based claims, so an expired token still yields its subject.
func (m *TokenManager) ExtractUsername(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("parse token: missing subject")
	}
	return claims.Subject, nil
}
