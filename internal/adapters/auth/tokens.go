// Package auth issues and verifies the bearer tokens used by the API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fellowship/internal/domain/apperr"
)

const issuer = "fellowship"

var (
	ErrTokenInvalid = apperr.New(apperr.ErrUnauthenticated, "token is invalid")
	ErrTokenExpired = apperr.New(apperr.ErrUnauthenticated, "token has expired")
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims carried by every token. Subject holds the member ID.
type Claims struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// MemberID returns the subject of the token.
func (c *Claims) MemberID() string {
	return c.Subject
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Subject identifies whom a token is issued to.
type Subject struct {
	MemberID string
	Email    string
	Role     string
}

// Issuer signs and verifies HS256 tokens. Access and refresh tokens use
// distinct secrets so one can never be replayed as the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer creates a token issuer.
// PRE: secrets are non-empty and distinct; TTLs are positive
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// AccessTTL is the lifetime of access tokens.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssuePair creates an access and a refresh token for sub.
func (i *Issuer) IssuePair(sub Subject) (TokenPair, error) {
	now := i.now()
	access, err := i.sign(sub, AccessToken, now, now.Add(i.accessTTL), i.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(sub, RefreshToken, now, now.Add(i.refreshTTL), i.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: now.Add(i.accessTTL).Unix()}, nil
}

// IssueAccess creates only an access token, used by refresh.
func (i *Issuer) IssueAccess(sub Subject) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)
	tok, err := i.sign(sub, AccessToken, now, exp, i.accessSecret)
	return tok, exp, err
}

func (i *Issuer) sign(sub Subject, typ TokenType, now, exp time.Time, secret []byte) (string, error) {
	claims := &Claims{
		Email:     sub.Email,
		Role:      sub.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.MemberID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, AccessToken, i.accessSecret)
}

// VerifyRefresh validates a refresh token.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, RefreshToken, i.refreshSecret)
}

func (i *Issuer) verify(tokenString string, expected TokenType, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != expected || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
