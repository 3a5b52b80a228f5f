package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminClaimRole = "admin"

// resolveCaller turns the session, if any, into a confessions.Caller.
// Requests without a session continue anonymously; a present but invalid session is rejected.
func (h *httpHandler) resolveCaller(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		c.Set(callerContextKey, confessions.AnonymousCaller())
		c.Next()
		return
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	member, err := h.members.ResolveMember(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			h.logger.Warn("session carried no usable identity", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("member resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "member_resolution_failed"})
		return
	}

	userID, err := confessions.NewUserID(member.UserID)
	if err != nil {
		h.logger.Warn("member id rejected", zap.String("user_id", member.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	displayName := member.DisplayName
	if strings.TrimSpace(displayName) == "" {
		displayName = claims.UserDisplayName
	}
	privileged := member.Privileged() || claims.HasRole(adminClaimRole)

	c.Set(memberContextKey, member)
	c.Set(callerContextKey, confessions.AuthenticatedCaller(userID, displayName, privileged))
	c.Next()
}

func (h *httpHandler) requireAuthenticated(c *gin.Context) {
	if !callerFromContext(c).Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) requirePrivileged(c *gin.Context) {
	caller := callerFromContext(c)
	if !caller.Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !caller.Privileged() {
		h.logger.Warn("privileged route denied", zap.String("user_id", caller.UserID().String()), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

// callerFromContext returns the caller set by resolveCaller, or an anonymous caller.
func callerFromContext(c *gin.Context) confessions.Caller {
	value, ok := c.Get(callerContextKey)
	if !ok {
		return confessions.AnonymousCaller()
	}
	caller, ok := value.(confessions.Caller)
	if !ok {
		return confessions.AnonymousCaller()
	}
	return caller
}

func memberFromContext(c *gin.Context) (users.Member, bool) {
	value, ok := c.Get(memberContextKey)
	if !ok {
		return users.Member{}, false
	}
	member, ok := value.(users.Member)
	return member, ok
}
