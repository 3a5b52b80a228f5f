package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	callerContextKey         = "confessions_caller"
	memberContextKey         = "confessions_member"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingMemberDirectory  = errors.New("member directory dependency required")
	errMissingConfessionStore  = errors.New("confession store dependency required")
	errMissingReactionLedger   = errors.New("reaction ledger dependency required")
	errMissingModerator        = errors.New("moderator dependency required")
	errMissingCommentService   = errors.New("comment service dependency required")
)

// SessionValidator authenticates a request from its session cookie or bearer token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// MemberDirectory resolves and manages members.
type MemberDirectory interface {
	ResolveMember(ctx context.Context, claims auth.SessionClaims) (users.Member, error)
	ListMembers(ctx context.Context, search string) ([]users.Member, error)
	SetRole(ctx context.Context, userID string, role users.Role) (users.Member, error)
	DeleteMember(ctx context.Context, userID string) error
}

type Dependencies struct {
	Sessions         SessionValidator
	Members          MemberDirectory
	Store            *confessions.Store
	Ledger           *confessions.Ledger
	Moderator        *confessions.Moderator
	Comments         *confessions.CommentService
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
	AllowedOrigins   []string
	CreatesPerMinute int
	CreateBurst      int
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Members == nil:
		return nil, errMissingMemberDirectory
	case deps.Store == nil:
		return nil, errMissingConfessionStore
	case deps.Ledger == nil:
		return nil, errMissingReactionLedger
	case deps.Moderator == nil:
		return nil, errMissingModerator
	case deps.Comments == nil:
		return nil, errMissingCommentService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.Sessions,
		members:           deps.Members,
		store:             deps.Store,
		ledger:            deps.Ledger,
		moderator:         deps.Moderator,
		comments:          deps.Comments,
		realtime:          realtime,
		logger:            logger,
		heartbeatInterval: defaultHeartbeatInterval,
	}
	createLimit := newIPRateLimiter(deps.CreatesPerMinute, deps.CreateBurst, nil)
	commentLimit := newIPRateLimiter(deps.CreatesPerMinute, deps.CreateBurst, nil)

	api := router.Group("/api")
	api.Use(handler.resolveCaller)

	api.GET("/confessions", handler.handleListConfessions)
	api.POST("/confessions", createLimit.middleware(), handler.handleCreateConfession)
	api.GET("/confessions/stream", handler.handleStream)
	api.GET("/confessions/:id", handler.handleGetConfession)
	api.DELETE("/confessions/:id", handler.requireAuthenticated, handler.handleRemoveOwn)
	api.POST("/confessions/:id/reactions", handler.handleReact)
	api.GET("/confessions/:id/comments", handler.handleListComments)
	api.POST("/confessions/:id/comments", commentLimit.middleware(), handler.handleAddComment)
	api.GET("/me", handler.requireAuthenticated, handler.handleMe)

	admin := api.Group("/admin")
	admin.Use(handler.requirePrivileged)
	admin.GET("/confessions", handler.handleModerationList)
	admin.POST("/confessions/:id/approve", handler.handleApprove)
	admin.POST("/confessions/:id/reject", handler.handleReject)
	admin.DELETE("/confessions/:id", handler.handleRemove)
	admin.GET("/confessions/:id/history", handler.handleHistory)
	admin.DELETE("/comments/:id", handler.handleDeleteComment)
	admin.GET("/users", handler.handleListMembers)
	admin.PUT("/users/:id/role", handler.handleSetRole)
	admin.DELETE("/users/:id", handler.handleDeleteMember)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	members           MemberDirectory
	store             *confessions.Store
	ledger            *confessions.Ledger
	moderator         *confessions.Moderator
	comments          *confessions.CommentService
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-TAuth-Tenant"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}
