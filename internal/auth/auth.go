// Package auth defines the authentication collaborator and a local verifier
// for Supabase-issued access tokens.
package auth

import (
	"context"
	"errors"
	"time"

	"skovkrogen/internal/models"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnsupported        = errors.New("operation not supported by this authenticator")
)

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at"`
	User         models.Viewer `json:"user"`
}

// Authenticator resolves and manages identities. CurrentUser returns
// ErrInvalidToken for tokens that are missing, expired or forged.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (*models.Viewer, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, token, password string) error
}

// VerifierOnly authenticates bearer tokens and nothing else. It is used when
// tokens are minted elsewhere and no auth server is configured.
type VerifierOnly struct {
	*JWTVerifier
}

func (VerifierOnly) SignInWithPassword(context.Context, string, string) (*Session, error) {
	return nil, ErrUnsupported
}

func (VerifierOnly) SignOut(context.Context, string) error {
	return nil
}

func (VerifierOnly) ResetPasswordForEmail(context.Context, string, string) error {
	return ErrUnsupported
}

func (VerifierOnly) UpdatePassword(context.Context, string, string) error {
	return ErrUnsupported
}
