// Package auth verifies credentials and issues session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/metrics"
	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/store"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password. Callers cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks passwords against the user store and signs tokens.
type Authenticator struct {
	users  store.UserStore
	signer *crypto.TokenSigner
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(users store.UserStore, signer *crypto.TokenSigner) *Authenticator {
	return &Authenticator{users: users, signer: signer}
}

// Login verifies the password and returns a session token with the user's profile.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, *models.Profile, error) {
	if username == "" || password == "" {
		crypto.BurnPasswordCheck(password)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return "", nil, ErrInvalidCredentials
	}

	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		crypto.BurnPasswordCheck(password)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return "", nil, ErrInvalidCredentials
	}

	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	token, err := a.signer.Sign(user.ID, user.Username)
	if err != nil {
		return "", nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	profile := user.Profile()
	return token, &profile, nil
}

// Verify validates a session token and returns its claims.
func (a *Authenticator) Verify(token string) (*crypto.Claims, error) {
	return a.signer.Parse(token)
}
