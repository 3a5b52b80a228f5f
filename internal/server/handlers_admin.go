package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *httpHandler) handleModerationList(c *gin.Context) {
	criteria, err := criteriaFromQuery(c, confessions.SurfaceModeration)
	if err != nil {
		h.writeBadRequest(c, "http.invalid_query", err)
		return
	}
	items, err := h.store.List(c.Request.Context(), criteria)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confessions": newConfessionPayloads(items)})
}

func (h *httpHandler) handleApprove(c *gin.Context) {
	h.applyStatus(c, h.moderator.Approve)
}

func (h *httpHandler) handleReject(c *gin.Context) {
	h.applyStatus(c, h.moderator.Reject)
}

type statusTransition func(ctx context.Context, id confessions.ConfessionID, actor confessions.Caller) (confessions.Confession, error)

func (h *httpHandler) applyStatus(c *gin.Context, transition statusTransition) {
	id, ok := h.confessionIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	previous, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	actor := callerFromContext(c)
	updated, err := transition(ctx, id, actor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("confession moderated",
		zap.String("confession_id", id.String()),
		zap.String("from", string(previous.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_id", actor.UserID().String()),
	)
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventConfessionStatus,
		ConfessionID: id.String(),
		Status:       updated.Status,
		Public:       updated.Status == confessions.StatusApproved || previous.Status == confessions.StatusApproved,
	})
	c.JSON(http.StatusOK, newConfessionPayload(updated))
}

func (h *httpHandler) handleRemove(c *gin.Context) {
	id, ok := h.confessionIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	previous, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	actor := callerFromContext(c)
	if err := h.moderator.Remove(ctx, id, actor); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("confession removed", zap.String("confession_id", id.String()), zap.String("actor_id", actor.UserID().String()))
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventConfessionRemoved,
		ConfessionID: id.String(),
		Public:       previous.Status == confessions.StatusApproved,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	id, ok := h.confessionIDParam(c)
	if !ok {
		return
	}
	events, err := h.moderator.History(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": newModerationEventPayloads(events)})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	id, err := confessions.NewCommentID(c.Param("id"))
	if err != nil {
		h.writeBadRequest(c, "http.invalid_id", err)
		return
	}
	removed, err := h.comments.DeleteComment(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("comment removed", zap.String("comment_id", removed.ID.String()), zap.String("confession_id", removed.ConfessionID.String()))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.members.ListMembers(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.writeMemberError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": members})
}

func (h *httpHandler) handleSetRole(c *gin.Context) {
	var request setRoleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "http.invalid_json", err)
		return
	}
	role, err := users.ParseRole(request.Role)
	if err != nil {
		h.writeMemberError(c, err)
		return
	}
	member, err := h.members.SetRole(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		h.writeMemberError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *httpHandler) handleDeleteMember(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == callerFromContext(c).UserID().String() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "cannot_delete_self", "code": "users.delete.self"})
		return
	}
	if err := h.members.DeleteMember(c.Request.Context(), userID); err != nil {
		h.writeMemberError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) writeMemberError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidRole):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "users.invalid_role"})
	case errors.Is(err, users.ErrInvalidIdentity):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": "users.invalid_identity"})
	case errors.Is(err, users.ErrMemberNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found", "code": "users.not_found"})
	default:
		h.logger.Error("member request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": "users.storage_failed"})
	}
}
