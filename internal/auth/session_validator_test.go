package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func newTestValidator(t *testing.T, clockNow time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signTestToken(t *testing.T, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(clockNow time.Time) SessionClaims {
	return SessionClaims{
		UserID:          testSessionUserID,
		UserEmail:       testSessionUserEmail,
		UserDisplayName: "Test Student",
		UserRoles:       []string{"student"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	claims, err := validator.ValidateToken(signTestToken(t, validClaims(clockNow)))
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if claims.UserDisplayName != "Test Student" {
		t.Fatalf("unexpected display name: %s", claims.UserDisplayName)
	}
}

func TestSessionValidatorRejectsBadTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	expired := validClaims(clockNow)
	expired.IssuedAt = jwt.NewNumericDate(clockNow.Add(-2 * time.Hour))
	expired.NotBefore = nil
	expired.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-time.Hour))

	foreignIssuer := validClaims(clockNow)
	foreignIssuer.Issuer = "someone-else"

	missingSubject := validClaims(clockNow)
	missingSubject.Subject = ""

	testCases := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: signTestToken(t, expired), wantErr: ErrExpiredSessionToken},
		{name: "foreign-issuer", token: signTestToken(t, foreignIssuer), wantErr: ErrInvalidSessionToken},
		{name: "missing-subject", token: signTestToken(t, missingSubject), wantErr: ErrMissingSessionSubject},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidSessionToken},
		{name: "blank", token: "   ", wantErr: ErrMissingSessionToken},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := validator.ValidateToken(testCase.token)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	clockNow := time.Now()
	validator := newTestValidator(t, clockNow)

	request := httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)
	request.AddCookie(&http.Cookie{
		Name:  testSessionCookieName,
		Value: signTestToken(t, validClaims(clockNow)),
	})

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
}

func TestSessionValidatorValidateRequestFallsBackToBearer(t *testing.T) {
	clockNow := time.Now()
	validator := newTestValidator(t, clockNow)

	request := httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+signTestToken(t, validClaims(clockNow)))

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.UserEmail != testSessionUserEmail {
		t.Fatalf("unexpected email: %s", claims.UserEmail)
	}
}

func TestSessionValidatorValidateRequestWithoutCredentials(t *testing.T) {
	validator := newTestValidator(t, time.Now())

	request := httptest.NewRequest(http.MethodGet, "/api/confessions", http.NoBody)
	request.Header.Set("Authorization", "Basic Zm9vOmJhcg==")

	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestNewSessionValidatorDefaults(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{CookieName: testSessionCookieName}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	if _, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte("x")}); !errors.Is(err, ErrMissingSessionCookieName) {
		t.Fatalf("expected missing cookie name error, got %v", err)
	}
	validator := newTestValidator(t, time.Now())
	if validator.Issuer() != defaultSessionIssuer {
		t.Fatalf("expected default issuer, got %q", validator.Issuer())
	}
}

func TestSessionClaimsHasRole(t *testing.T) {
	claims := SessionClaims{UserRoles: []string{"student", " Admin "}}
	if !claims.HasRole("admin") {
		t.Fatalf("expected admin role to match")
	}
	if claims.HasRole("moderator") {
		t.Fatalf("unexpected moderator role")
	}
	if claims.HasRole("") {
		t.Fatalf("blank role must never match")
	}
}

func TestSessionValidatorLeewayToleratesSkew(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Leeway:        30 * time.Second,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	justExpired := validClaims(clockNow)
	justExpired.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-10 * time.Second))
	if _, err := validator.ValidateToken(signTestToken(t, justExpired)); err != nil {
		t.Fatalf("expected skew within leeway to pass, got %v", err)
	}

	withoutExpiry := validClaims(clockNow)
	withoutExpiry.ExpiresAt = nil
	if _, err := validator.ValidateToken(signTestToken(t, withoutExpiry)); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected tokens without expiry to be rejected, got %v", err)
	}
}
