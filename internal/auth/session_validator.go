package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer = "tauth"
	bearerScheme         = "bearer"
)

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// SessionClaims is the payload of a TAuth session token.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserAvatarURL   string   `json:"user_avatar_url"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry the role, ignoring case.
func (c SessionClaims) HasRole(role string) bool {
	wanted := strings.TrimSpace(role)
	if wanted == "" {
		return false
	}
	for _, candidate := range c.UserRoles {
		if strings.EqualFold(strings.TrimSpace(candidate), wanted) {
			return true
		}
	}
	return false
}

// SessionValidatorConfig describes how session tokens are checked.
// An empty Issuer falls back to "tauth"; Leeway tolerates clock skew on the time claims.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Leeway        time.Duration
	Clock         func() time.Time
}

// SessionValidator accepts HS256 session tokens from the session cookie or a bearer header.
type SessionValidator struct {
	secret     []byte
	issuer     string
	cookieName string
	parser     *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	cookieName := strings.TrimSpace(cfg.CookieName)
	switch {
	case len(cfg.SigningSecret) == 0:
		return nil, ErrMissingSessionSigningKey
	case cookieName == "":
		return nil, ErrMissingSessionCookieName
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}

	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		issuer:     issuer,
		cookieName: cookieName,
		parser:     jwt.NewParser(options...),
	}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

func (v *SessionValidator) Issuer() string {
	return v.issuer
}

// ValidateToken parses a raw token and returns its claims.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.signingKey); err != nil {
		return SessionClaims{}, classifyParseError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest checks the session cookie first and then an "Authorization: Bearer" header.
// ErrMissingSessionToken means the request carried neither.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	raw, ok := v.sessionToken(r)
	if !ok {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(raw)
}

func (v *SessionValidator) sessionToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return cookie.Value, true
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (v *SessionValidator) signingKey(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredSessionToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
}
