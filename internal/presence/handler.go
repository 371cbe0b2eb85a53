package presence

import (
	"collab-engine/internal/errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type UpdateRequest struct {
	Status   string `json:"status" binding:"required,oneof=online away busy offline"`
	Location string `json:"location" binding:"max=255"`
	Device   string `json:"device" binding:"max=255"`
	Browser  string `json:"browser" binding:"max=255"`
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	record, err := h.service.UpdatePresence(c.Request.Context(), userID.(uint64), UpdateInput{
		Status:   req.Status,
		Location: req.Location,
		Device:   req.Device,
		Browser:  req.Browser,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type HeartbeatRequest struct {
	Location string `json:"location" binding:"max=255"`
}

func (h *Handler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.NewValidationError(err))
			return
		}
	}

	userID, _ := c.Get("user_id")

	record, err := h.service.Heartbeat(c.Request.Context(), userID.(uint64), req.Location)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) Clear(c *gin.Context) {
	userID, _ := c.Get("user_id")

	record, err := h.service.ClearPresence(c.Request.Context(), userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) SessionPresence(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	result, err := h.service.GetSessionPresence(c.Request.Context(), sessionID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
