package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognized by the tool permission gate.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal is the authenticated identity attached to a session.
type Principal struct {
	UserID     string
	Role       string
	Privileged bool
}

// Authenticator validates connection credentials. Paths are tried in strict
// order and each failure falls through to the next: a signed short-lived
// service token, a server-issued session token, then a cookie identity token
// signed with the main application's session secret.
type Authenticator struct {
	serviceSecret []byte
	appSecret     []byte
	store         *TokenStore
}

func NewAuthenticator(serviceSecret, appSecret string, store *TokenStore) *Authenticator {
	return &Authenticator{
		serviceSecret: []byte(serviceSecret),
		appSecret:     []byte(appSecret),
		store:         store,
	}
}

// Path names reported to metrics.
const (
	PathServiceToken = "service_token"
	PathSessionToken = "session_token"
	PathCookie       = "cookie"
)

// Authenticate resolves the caller's principal from the upgrade request.
// Returns ErrUnauthorized when every credential path fails; the caller must
// close the connection before any session exists.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, string, error) {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" && len(a.serviceSecret) > 0 {
		if p, err := a.verifyJWT(token, a.serviceSecret); err == nil {
			return p, PathServiceToken, nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("session_token")); token != "" && a.store != nil {
		if p, ok := a.store.Lookup(token); ok {
			return p, PathSessionToken, nil
		}
	}

	if c, err := r.Cookie("sonara_identity"); err == nil && len(a.appSecret) > 0 {
		if p, err := a.verifyJWT(strings.TrimSpace(c.Value), a.appSecret); err == nil {
			return p, PathCookie, nil
		}
	}

	return Principal{}, "", ErrUnauthorized
}

type identityClaims struct {
	Role       string `json:"role"`
	Privileged bool   `json:"privileged,omitempty"`
	jwt.RegisteredClaims
}

func (a *Authenticator) verifyJWT(token string, secret []byte) (Principal, error) {
	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return Principal{}, ErrUnauthorized
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Principal{}, errors.New("token missing subject")
	}
	role := strings.TrimSpace(claims.Role)
	if role == "" {
		role = RoleUser
	}
	return Principal{UserID: sub, Role: role, Privileged: claims.Privileged}, nil
}

// SignIdentityToken mints an HS256 token for the given principal. Used by
// tests and by cross-service callers that hold the signing secret.
func SignIdentityToken(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		Role:       p.Role,
		Privileged: p.Privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
