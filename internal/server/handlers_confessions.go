package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createConfessionRequest struct {
	Content        string `json:"content"`
	Category       string `json:"category"`
	RevealIdentity bool   `json:"revealIdentity"`
}

type reactRequest struct {
	Type string `json:"type"`
}

type reactResponse struct {
	AppliedType *string           `json:"appliedType"`
	Confession  confessionPayload `json:"confession"`
}

type addCommentRequest struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleListConfessions(c *gin.Context) {
	criteria, err := criteriaFromQuery(c, confessions.SurfacePublic)
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

func (h *httpHandler) handleGetConfession(c *gin.Context) {
	confession, ok := h.loadVisibleConfession(c)
	if !ok {
		return
	}
	payload := newConfessionPayload(confession)
	caller := callerFromContext(c)
	if caller.Authenticated() {
		current, err := h.ledger.CurrentReaction(c.Request.Context(), confession.ID, caller.UserID())
		if err != nil {
			h.writeServiceError(c, err)
			return
		}
		if current != nil {
			value := string(*current)
			payload.MyReaction = &value
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateConfession(c *gin.Context) {
	var request createConfessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "http.invalid_json", err)
		return
	}
	confession, err := h.store.Create(c.Request.Context(), confessions.Draft{
		Content:        request.Content,
		Category:       request.Category,
		RevealIdentity: request.RevealIdentity,
	}, callerFromContext(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("confession submitted", zap.String("confession_id", confession.ID.String()), zap.String("category", string(confession.Category)))
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventConfessionCreated,
		ConfessionID: confession.ID.String(),
		Status:       confession.Status,
		Public:       confession.Status == confessions.StatusApproved,
	})
	c.JSON(http.StatusCreated, newConfessionPayload(confession))
}

func (h *httpHandler) handleReact(c *gin.Context) {
	var request reactRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "http.invalid_json", err)
		return
	}
	reaction, err := confessions.ParseReactionType(request.Type)
	if err != nil {
		h.writeBadRequest(c, "http.invalid_reaction", err)
		return
	}
	id, ok := h.confessionIDParam(c)
	if !ok {
		return
	}

	result, err := h.ledger.ReactIfVisible(c.Request.Context(), id, callerFromContext(c), reaction)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	reactions := result.Confession.Reactions
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventConfessionReactions,
		ConfessionID: result.Confession.ID.String(),
		Status:       result.Confession.Status,
		Reactions:    &reactions,
		Public:       result.Confession.Status == confessions.StatusApproved,
	})

	response := reactResponse{Confession: newConfessionPayload(result.Confession)}
	if result.AppliedType != nil {
		applied := string(*result.AppliedType)
		response.AppliedType = &applied
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	confession, ok := h.loadVisibleConfession(c)
	if !ok {
		return
	}
	items, err := h.comments.ListComments(c.Request.Context(), confession.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	payloads := make([]commentPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, newCommentPayload(item))
	}
	c.JSON(http.StatusOK, gin.H{"comments": payloads})
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var request addCommentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, "http.invalid_json", err)
		return
	}
	confession, ok := h.loadVisibleConfession(c)
	if !ok {
		return
	}
	comment, err := h.comments.AddCommentIfVisible(c.Request.Context(), confession.ID, callerFromContext(c), request.Content)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventCommentAdded,
		ConfessionID: confession.ID.String(),
		Status:       confession.Status,
		CommentID:    comment.ID.String(),
		Public:       confession.Status == confessions.StatusApproved,
	})
	c.JSON(http.StatusCreated, newCommentPayload(comment))
}

// handleRemoveOwn lets an author delete their own attributed confession.
func (h *httpHandler) handleRemoveOwn(c *gin.Context) {
	id, ok := h.confessionIDParam(c)
	if !ok {
		return
	}
	caller := callerFromContext(c)
	removed, err := h.store.RemoveOwn(c.Request.Context(), id, caller)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("confession withdrawn by author", zap.String("confession_id", id.String()), zap.String("user_id", caller.UserID().String()))
	h.realtime.Publish(RealtimeMessage{
		EventType:    RealtimeEventConfessionRemoved,
		ConfessionID: id.String(),
		Public:       removed.Status == confessions.StatusApproved,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	member, ok := memberFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, mePayload{Member: member, Privileged: callerFromContext(c).Privileged()})
}

// loadVisibleConfession loads the :id confession and hides unpublished ones from unprivileged callers.
func (h *httpHandler) loadVisibleConfession(c *gin.Context) (confessions.Confession, bool) {
	id, ok := h.confessionIDParam(c)
	if !ok {
		return confessions.Confession{}, false
	}
	confession, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return confessions.Confession{}, false
	}
	if !callerFromContext(c).Privileged() && !publiclyVisible(confession) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found", "code": "confessions.get.not_found"})
		return confessions.Confession{}, false
	}
	return confession, true
}

func (h *httpHandler) confessionIDParam(c *gin.Context) (confessions.ConfessionID, bool) {
	id, err := confessions.NewConfessionID(c.Param("id"))
	if err != nil {
		h.writeBadRequest(c, "http.invalid_id", err)
		return "", false
	}
	return id, true
}

func publiclyVisible(confession confessions.Confession) bool {
	query, err := confessions.ComposeQuery(confessions.Criteria{Surface: confessions.SurfacePublic})
	if err != nil {
		return false
	}
	return query.Matches(confession)
}

func criteriaFromQuery(c *gin.Context, surface confessions.Surface) (confessions.Criteria, error) {
	criteria := confessions.Criteria{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		SortBy:   sortQuery(c),
		Search:   c.Query("search"),
		Surface:  surface,
	}
	var err error
	if criteria.Limit, err = intQuery(c, "limit"); err != nil {
		return confessions.Criteria{}, err
	}
	if criteria.Offset, err = intQuery(c, "offset"); err != nil {
		return confessions.Criteria{}, err
	}
	return criteria, nil
}

// sortQuery reads sortBy, falling back to the older sort parameter.
func sortQuery(c *gin.Context) string {
	if value, ok := c.GetQuery("sortBy"); ok {
		return value
	}
	return c.Query("sort")
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return value, nil
}
