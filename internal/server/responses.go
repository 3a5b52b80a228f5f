package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type confessionPayload struct {
	ID             string                `json:"id"`
	Content        string                `json:"content"`
	Category       string                `json:"category"`
	Status         string                `json:"status"`
	RevealIdentity bool                  `json:"revealIdentity"`
	AuthorID       string                `json:"authorId,omitempty"`
	DisplayName    string                `json:"displayName,omitempty"`
	Reactions      confessions.Reactions `json:"reactions"`
	MyReaction     *string               `json:"myReaction,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func newConfessionPayload(confession confessions.Confession) confessionPayload {
	payload := confessionPayload{
		ID:             confession.ID.String(),
		Content:        confession.Content,
		Category:       string(confession.Category),
		Status:         string(confession.Status),
		RevealIdentity: confession.RevealIdentity,
		Reactions:      confession.Reactions,
		CreatedAt:      confession.CreatedAt,
		UpdatedAt:      confession.UpdatedAt,
	}
	if !confession.Author.Anonymous() {
		payload.AuthorID = confession.Author.UserID().String()
		payload.DisplayName = confession.Author.DisplayName()
	}
	return payload
}

func newConfessionPayloads(items []confessions.Confession) []confessionPayload {
	payloads := make([]confessionPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, newConfessionPayload(item))
	}
	return payloads
}

type commentPayload struct {
	ID           string    `json:"id"`
	ConfessionID string    `json:"confessionId"`
	Content      string    `json:"content"`
	AuthorID     string    `json:"authorId,omitempty"`
	DisplayName  string    `json:"displayName"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newCommentPayload(comment confessions.Comment) commentPayload {
	payload := commentPayload{
		ID:           comment.ID.String(),
		ConfessionID: comment.ConfessionID.String(),
		Content:      comment.Content,
		DisplayName:  "Anonymous",
		CreatedAt:    comment.CreatedAt,
	}
	if !comment.Author.Anonymous() {
		payload.AuthorID = comment.Author.UserID().String()
		payload.DisplayName = comment.Author.DisplayName()
	}
	return payload
}

type moderationEventPayload struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	AppliedAt  time.Time `json:"appliedAt"`
}

func newModerationEventPayloads(events []confessions.ModerationEvent) []moderationEventPayload {
	payloads := make([]moderationEventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, moderationEventPayload{
			ID:         event.ID,
			Action:     string(event.Action),
			FromStatus: string(event.FromStatus),
			ToStatus:   string(event.ToStatus),
			ActorID:    event.ActorID.String(),
			AppliedAt:  event.AppliedAt,
		})
	}
	return payloads
}

type mePayload struct {
	Member     users.Member `json:"member"`
	Privileged bool         `json:"privileged"`
}

// writeServiceError maps a confessions error onto a status code and the JSON error body.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"
	switch {
	case errors.Is(err, confessions.ErrValidation):
		status, message = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, confessions.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, confessions.ErrNotFound):
		status, message = http.StatusNotFound, "not_found"
	case errors.Is(err, confessions.ErrInvalidTransition):
		status, message = http.StatusConflict, "invalid_transition"
	}

	body := gin.H{"error": message}
	var serviceErr *confessions.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
		if status == http.StatusBadRequest && serviceErr.Cause() != nil {
			body["message"] = serviceErr.Cause().Error()
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *httpHandler) writeBadRequest(c *gin.Context, code string, err error) {
	body := gin.H{"error": "invalid_request", "code": code}
	if err != nil {
		body["message"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
