package auth

import (
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clockSkew = 30 * time.Second

var (
	ErrMissingSecret   = errors.New("jwt secret is required")
	ErrInvalidToken    = errors.New("invalid session token")
	ErrMissingUsername = errors.New("username missing in session token")
)

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

func NewManagerFromConfig() (*Manager, error) {
	return NewManager(
		config.Conf.AuthJWTSecret,
		config.Conf.AuthJWTIssuer,
		time.Duration(config.Conf.AuthTokenTTL)*time.Second,
	)
}

type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Issue signs an HS256 session token for username.
func (manager *Manager) Issue(now time.Time, username string) (Token, error) {
	expiresAt := now.Add(manager.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    manager.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.secret)
	if err != nil {
		return Token{}, err
	}

	return Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, issuer and expiry of tokenString at now.
func (manager *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}

	if manager.issuer != "" {
		options = append(options, jwt.WithIssuer(manager.issuer))
	}

	_, err := jwt.NewParser(options...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return manager.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Username == "" {
		return Claims{}, ErrMissingUsername
	}

	return claims, nil
}
