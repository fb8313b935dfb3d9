package auth

import (
	"crypto/subtle"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticator checks the single operator account against a bcrypt hash.
type Authenticator struct {
	Username     string
	PasswordHash []byte
}

func NewAuthenticator(username, passwordHash string) *Authenticator {
	return &Authenticator{Username: username, PasswordHash: []byte(passwordHash)}
}

func NewAuthenticatorFromConfig() *Authenticator {
	return NewAuthenticator(config.Conf.AuthUsername, config.Conf.AuthPasswordHash)
}

func (authenticator *Authenticator) Authenticate(username, password string) error {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(authenticator.Username)) == 1

	err := bcrypt.CompareHashAndPassword(authenticator.PasswordHash, []byte(password))
	if err != nil || !usernameMatch {
		return ErrInvalidCredentials
	}

	return nil
}
