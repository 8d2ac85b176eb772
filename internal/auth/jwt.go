package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skovkrogen/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the parts of a Supabase access token the service reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with the project secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewJWTVerifier builds a verifier. Supabase tokens carry the audience
// "authenticated"; an empty audience skips the check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience, now: time.Now}
}

// Parse validates token and returns its claims.
func (v *JWTVerifier) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" || len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CurrentUser resolves the viewer carried by token.
func (v *JWTVerifier) CurrentUser(_ context.Context, token string) (*models.Viewer, error) {
	claims, err := v.Parse(token)
	if err != nil {
		return nil, err
	}
	return &models.Viewer{ID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs a token for viewer. Used for the Telegram front end's internal
// calls and in tests.
func (v *JWTVerifier) Issue(viewer models.Viewer, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: viewer.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
