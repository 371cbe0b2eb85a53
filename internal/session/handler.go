package session

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/utils"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("sessionrole", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
				return true
			}
			return false
		})
	}
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	ResourceID          uint64   `json:"resource_id" binding:"required"`
	ResourceType        string   `json:"resource_type" binding:"required,min=1,max=64"`
	Type                string   `json:"type" binding:"required,min=1,max=64"`
	Title               string   `json:"title" binding:"required,min=1,max=255"`
	Description         *string  `json:"description"`
	Settings            Settings `json:"settings"`
	InitialParticipants []uint64 `json:"initial_participants"`
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	session, err := h.service.CreateSession(c.Request.Context(), CreateInput{
		ResourceID:          req.ResourceID,
		ResourceType:        req.ResourceType,
		Type:                req.Type,
		Title:               req.Title,
		Description:         req.Description,
		Settings:            req.Settings,
		InitialParticipants: req.InitialParticipants,
	}, userID.(uint64), orgID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) Show(c *gin.Context) {
	userID, _ := c.Get("user_id")

	// the path segment is either a numeric id or a session token
	var session *Session
	var err error
	if sessionID, parseErr := strconv.ParseUint(c.Param("id"), 10, 64); parseErr == nil {
		session, err = h.service.GetSession(c.Request.Context(), sessionID, userID.(uint64))
	} else {
		session, err = h.service.GetSessionByToken(c.Request.Context(), c.Param("id"), userID.(uint64))
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type UpdateRequest struct {
	Title       *string   `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string   `json:"description"`
	Type        *string   `json:"type" binding:"omitempty,min=1,max=64"`
	Settings    *Settings `json:"settings"`
}

func (h *Handler) Update(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	session, err := h.service.UpdateSession(c.Request.Context(), sessionID, UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Settings:    req.Settings,
	}, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) End(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	userID, _ := c.Get("user_id")

	session, err := h.service.EndSession(c.Request.Context(), sessionID, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")

	filter := ListFilter{
		Type:       c.Query("type"),
		ActiveOnly: c.Query("active") == "true",
	}

	page, pageSize := utils.GetPaginationParams(c)
	sessions, meta, err := h.service.ListSessions(c.Request.Context(), userID.(uint64), filter, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions, "meta": meta})
}

type JoinRequest struct {
	Role string `json:"role" binding:"omitempty,sessionrole"`
}

func (h *Handler) Join(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	var req JoinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.NewValidationError(err))
			return
		}
	}

	userID, _ := c.Get("user_id")

	participant, err := h.service.JoinSession(c.Request.Context(), sessionID, userID.(uint64), req.Role)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, participant)
}

func (h *Handler) Leave(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	userID, _ := c.Get("user_id")

	if err := h.service.LeaveSession(c.Request.Context(), sessionID, userID.(uint64)); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Participants(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid session id", err))
		return
	}

	participants, err := h.service.GetActiveParticipants(c.Request.Context(), sessionID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, participants)
}
