package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skovkrogen/internal/auth"
	"skovkrogen/internal/models"
)

// Auth implements auth.Authenticator against GoTrue. When a verifier is set,
// CurrentUser checks tokens locally instead of calling the server.
type Auth struct {
	client   *Client
	verifier *auth.JWTVerifier
	now      func() time.Time
}

func NewAuth(client *Client, verifier *auth.JWTVerifier) *Auth {
	return &Auth{client: client, verifier: verifier, now: time.Now}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

func bearer(token string) string {
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

func (a *Auth) CurrentUser(ctx context.Context, token string) (*models.Viewer, error) {
	token = bearer(token)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	if a.verifier != nil {
		return a.verifier.CurrentUser(ctx, token)
	}

	req, err := a.client.newRequest(WithAccessToken(ctx, token), http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	var u gotrueUser
	if err := a.client.do(req, &u); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	if u.Email == "" {
		return nil, auth.ErrInvalidToken
	}
	return &models.Viewer{ID: u.ID, Email: u.Email}, nil
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]string{"email": email, "password": password}
	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body)
	if err != nil {
		return nil, err
	}
	var s gotrueSession
	if err := a.client.do(req, &s); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	return &auth.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(s.ExpiresIn) * time.Second),
		User:         models.Viewer{ID: s.User.ID, Email: s.User.Email},
	}, nil
}

func (a *Auth) SignOut(ctx context.Context, token string) error {
	req, err := a.client.newRequest(WithAccessToken(ctx, bearer(token)), http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	return a.client.do(req, nil)
}

func (a *Auth) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	endpoint := "/auth/v1/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	req, err := a.client.newRequest(ctx, http.MethodPost, endpoint, map[string]string{"email": email})
	if err != nil {
		return err
	}
	return a.client.do(req, nil)
}

func (a *Auth) UpdatePassword(ctx context.Context, token, password string) error {
	req, err := a.client.newRequest(WithAccessToken(ctx, bearer(token)), http.MethodPut, "/auth/v1/user", map[string]string{"password": password})
	if err != nil {
		return err
	}
	return a.client.do(req, nil)
}
