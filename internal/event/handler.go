package event

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type AppendRequest struct {
	Type       string         `json:"type" binding:"required,min=1,max=64"`
	Payload    map[string]any `json:"payload"`
	DocumentID *uint64        `json:"document_id"`
	DocVersion *int           `json:"doc_version"`
	Position   *string        `json:"position"`
}

func (h *Handler) Append(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	e, err := h.service.Append(c.Request.Context(), Record{
		SessionID:  sessionID,
		Type:       req.Type,
		Payload:    req.Payload,
		ActorID:    userID.(uint64),
		DocumentID: req.DocumentID,
		DocVersion: req.DocVersion,
		Position:   req.Position,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, e)
}

func (h *Handler) Query(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	filter := Filter{SessionID: sessionID}
	if types, ok := c.GetQueryArray("type"); ok {
		filter.Types = types
	}
	if actorStr := c.Query("actor_id"); actorStr != "" {
		actorID, err := strconv.ParseUint(actorStr, 10, 64)
		if err != nil {
			c.Error(errors.BadRequest("Invalid actor id", err))
			return
		}
		filter.ActorID = &actorID
	}
	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.Error(errors.BadRequest("Invalid from timestamp", err))
			return
		}
		filter.From = &from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.Error(errors.BadRequest("Invalid to timestamp", err))
			return
		}
		filter.To = &to
	}

	page, pageSize := utils.GetPaginationParams(c)
	events, meta, err := h.service.Query(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events, "meta": meta})
}

func (h *Handler) Delete(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	var olderThan *time.Time
	if cutoffStr := c.Query("older_than"); cutoffStr != "" {
		cutoff, err := time.Parse(time.RFC3339, cutoffStr)
		if err != nil {
			c.Error(errors.BadRequest("Invalid older_than timestamp", err))
			return
		}
		olderThan = &cutoff
	}

	userID, _ := c.Get("user_id")

	deleted, err := h.service.DeleteEvents(c.Request.Context(), sessionID, olderThan, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) Summary(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	window := c.DefaultQuery("window", "day")

	summary, err := h.service.Summarize(c.Request.Context(), sessionID, window)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) Metrics(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.Error(errors.BadRequest("Invalid start timestamp", err))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.Error(errors.BadRequest("Invalid end timestamp", err))
		return
	}

	report, err := h.service.Metrics(c.Request.Context(), sessionID, start, end)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, report)
}
