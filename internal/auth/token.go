package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidAccessToken indicates the bearer token is malformed, forged or expired.
var ErrInvalidAccessToken = errors.New("invalid access token")

// TokenIssuer signs and verifies HMAC access tokens whose subject is the account id.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer constructs a TokenIssuer. The secret must not be empty.
func NewTokenIssuer(secret, issuer string) (TokenIssuer, error) {
	if secret == "" {
		return TokenIssuer{}, errors.New("auth: token secret must not be empty")
	}
	return TokenIssuer{secret: []byte(secret), issuer: issuer}, nil
}

// Sign issues an access token for userID valid until expiresAt.
func (t TokenIssuer) Sign(userID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse validates token and returns the account id it was issued for.
func (t TokenIssuer) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidAccessToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidAccessToken
	}
	return claims.Subject, nil
}
