package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/database"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/server"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "tauth"
	adminUserID          = "dean-1"
	jsonContentType      = "application/json"
)

type confessionView struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Category  string `json:"category"`
	Reactions struct {
		Like  int64 `json:"like"`
		Love  int64 `json:"love"`
		Laugh int64 `json:"laugh"`
	} `json:"reactions"`
}

type feedView struct {
	Confessions []confessionView `json:"confessions"`
}

func startServer(testContext *testing.T, createsPerMinute, burst int) *httptest.Server {
	testContext.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.Open("sqlite://"+filepath.Join(testContext.TempDir(), "integration.db"), logger)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}

	store, err := confessions.NewStore(confessions.StoreConfig{
		Database:   db,
		IDProvider: confessions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	members, err := users.NewService(users.ServiceConfig{
		Database:        db,
		BootstrapAdmins: []string{adminUserID},
		Logger:          logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build member directory: %v", err)
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:         sessionValidator,
		Members:          members,
		Store:            store,
		Ledger:           confessions.NewLedger(store),
		Moderator:        confessions.NewModerator(store),
		Comments:         confessions.NewCommentService(store),
		Logger:           logger,
		CreatesPerMinute: createsPerMinute,
		CreateBurst:      burst,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(func() {
		testServer.Close()
		_ = sqlDB.Close()
	})
	return testServer
}

func mustMintSessionToken(testContext *testing.T, signingSecret, userID string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:          userID,
		UserDisplayName: "User " + userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// send performs a request with the session cookie when token is set and decodes the JSON reply into out.
func send(testContext *testing.T, method, url, token string, body any, out any) int {
	testContext.Helper()
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			testContext.Errorf("failed to encode body: %v", err)
			return 0
		}
	}
	request, err := http.NewRequest(method, url, bytes.NewReader(encoded))
	if err != nil {
		testContext.Errorf("failed to build request: %v", err)
		return 0
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Errorf("%s %s failed: %v", method, url, err)
		return 0
	}
	defer response.Body.Close()
	if out != nil && response.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			testContext.Errorf("failed to decode %s %s: %v", method, url, err)
		}
	}
	return response.StatusCode
}

func TestModerationAndReactionFlow(testContext *testing.T) {
	testServer := startServer(testContext, 0, 0)
	adminToken := mustMintSessionToken(testContext, sessionSigningSecret, adminUserID, time.Now())

	contents := []string{
		"I pretend to understand the group chat memes.",
		"Sometimes I attend the wrong lecture on purpose.",
		"I have eaten cereal for dinner every night this week.",
	}
	created := make([]confessionView, 0, len(contents))
	for _, content := range contents {
		var view confessionView
		status := send(testContext, http.MethodPost, testServer.URL+"/api/confessions", "", map[string]any{"content": content, "category": "funny"}, &view)
		if status != http.StatusCreated {
			testContext.Fatalf("expected 201, got %d", status)
		}
		created = append(created, view)
	}

	for index, action := range []string{"approve", "approve", "reject"} {
		url := fmt.Sprintf("%s/api/admin/confessions/%s/%s", testServer.URL, created[index].ID, action)
		if status := send(testContext, http.MethodPost, url, adminToken, nil, nil); status != http.StatusOK {
			testContext.Fatalf("%s %d: expected 200, got %d", action, index, status)
		}
	}

	const studentCount = 12
	studentTokens := make([]string, studentCount)
	for index := range studentTokens {
		studentTokens[index] = mustMintSessionToken(testContext, sessionSigningSecret, fmt.Sprintf("student-%d", index), time.Now())
	}
	var wait sync.WaitGroup
	for index, token := range studentTokens {
		wait.Add(1)
		go func(studentIndex int, token string) {
			defer wait.Done()
			url := testServer.URL + "/api/confessions/" + created[1].ID + "/reactions"
			if status := send(testContext, http.MethodPost, url, token, map[string]string{"type": "like"}, nil); status != http.StatusOK {
				testContext.Errorf("student %d: expected 200, got %d", studentIndex, status)
			}
		}(index, token)
	}
	wait.Wait()

	for attempt := 0; attempt < 3; attempt++ {
		url := testServer.URL + "/api/confessions/" + created[0].ID + "/reactions"
		if status := send(testContext, http.MethodPost, url, "", map[string]string{"type": "laugh"}, nil); status != http.StatusOK {
			testContext.Fatalf("anonymous reaction %d: expected 200, got %d", attempt, status)
		}
	}

	var feed feedView
	if status := send(testContext, http.MethodGet, testServer.URL+"/api/confessions?sort=mostLiked", "", nil, &feed); status != http.StatusOK {
		testContext.Fatalf("expected feed, got %d", status)
	}
	if len(feed.Confessions) != 2 {
		testContext.Fatalf("expected two approved confessions, got %d", len(feed.Confessions))
	}
	if feed.Confessions[0].ID != created[1].ID || feed.Confessions[0].Reactions.Like != studentCount {
		testContext.Fatalf("expected most liked confession first with %d likes, got %+v", studentCount, feed.Confessions[0])
	}
	if feed.Confessions[1].Reactions.Laugh != 3 {
		testContext.Fatalf("expected three anonymous laughs, got %+v", feed.Confessions[1].Reactions)
	}

	var rejectedFeed feedView
	if status := send(testContext, http.MethodGet, testServer.URL+"/api/confessions?status=rejected", "", nil, &rejectedFeed); status != http.StatusOK {
		testContext.Fatalf("expected feed, got %d", status)
	}
	if len(rejectedFeed.Confessions) != 0 {
		testContext.Fatalf("expected rejected confessions to stay off the public feed, got %d", len(rejectedFeed.Confessions))
	}

	var queue feedView
	if status := send(testContext, http.MethodGet, testServer.URL+"/api/admin/confessions?status=rejected", adminToken, nil, &queue); status != http.StatusOK {
		testContext.Fatalf("expected moderation list, got %d", status)
	}
	if len(queue.Confessions) != 1 || queue.Confessions[0].ID != created[2].ID {
		testContext.Fatalf("expected the rejected confession in the moderation list, got %+v", queue.Confessions)
	}
}

func TestExpiredSessionIsRejected(testContext *testing.T) {
	testServer := startServer(testContext, 0, 0)
	expired := mustMintSessionToken(testContext, sessionSigningSecret, "student-1", time.Now().Add(-3*time.Hour))

	if status := send(testContext, http.MethodGet, testServer.URL+"/api/confessions", expired, nil, nil); status != http.StatusUnauthorized {
		testContext.Fatalf("expected 401 for expired session, got %d", status)
	}
	forged := mustMintSessionToken(testContext, "other-secret", "student-1", time.Now())
	if status := send(testContext, http.MethodGet, testServer.URL+"/api/confessions", forged, nil, nil); status != http.StatusUnauthorized {
		testContext.Fatalf("expected 401 for forged session, got %d", status)
	}
}

func TestSubmissionsAreRateLimited(testContext *testing.T) {
	testServer := startServer(testContext, 1, 2)
	body := map[string]any{"content": "I reply all to every campus email."}

	for attempt := 0; attempt < 2; attempt++ {
		if status := send(testContext, http.MethodPost, testServer.URL+"/api/confessions", "", body, nil); status != http.StatusCreated {
			testContext.Fatalf("attempt %d: expected 201, got %d", attempt, status)
		}
	}
	if status := send(testContext, http.MethodPost, testServer.URL+"/api/confessions", "", body, nil); status != http.StatusTooManyRequests {
		testContext.Fatalf("expected 429 after the burst, got %d", status)
	}
	if status := send(testContext, http.MethodGet, testServer.URL+"/api/confessions", "", nil, nil); status != http.StatusOK {
		testContext.Fatalf("expected reads to stay unlimited, got %d", status)
	}
}
