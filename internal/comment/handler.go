package comment

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/utils"
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

type CreateRequest struct {
	DocumentID uint64    `json:"document_id" binding:"required"`
	Content    string    `json:"content" binding:"required,min=1,max=10000"`
	Position   *Position `json:"position"`
	ParentID   *uint64   `json:"parent_id"`
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	comment, err := h.service.CreateComment(c.Request.Context(), CreateInput{
		DocumentID:     req.DocumentID,
		AuthorID:       userID.(uint64),
		OrganizationID: orgID.(uint64),
		Content:        req.Content,
		Position:       req.Position,
		ParentID:       req.ParentID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ListThreads(c *gin.Context) {
	input := ListInput{}
	if docStr := c.Query("document_id"); docStr != "" {
		docID, err := strconv.ParseUint(docStr, 10, 64)
		if err != nil {
			c.Error(errors.BadRequest("Invalid document id", err))
			return
		}
		input.DocumentID = docID
	}
	if sessionStr := c.Query("session_id"); sessionStr != "" {
		sessionID, err := strconv.ParseUint(sessionStr, 10, 64)
		if err != nil {
			c.Error(errors.BadRequest("Invalid session id", err))
			return
		}
		input.SessionID = sessionID
	}
	if resolvedStr := c.Query("resolved"); resolvedStr != "" {
		resolved := resolvedStr == "true"
		input.Resolved = &resolved
	}
	_, desc := utils.GetSortParam(c, "created_at", "created_at")
	input.SortDesc = desc

	page, pageSize := utils.GetPaginationParams(c)
	threads, meta, err := h.service.ListThreads(c.Request.Context(), input, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": threads, "meta": meta})
}

type UpdateRequest struct {
	Content  *string `json:"content" binding:"omitempty,min=1,max=10000"`
	Resolved *bool   `json:"resolved"`
}

func (h *Handler) Update(c *gin.Context) {
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid comment id", err))
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	comment, err := h.service.UpdateComment(c.Request.Context(), commentID, UpdateInput{
		Content:  req.Content,
		Resolved: req.Resolved,
	}, userID.(uint64), orgID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

func (h *Handler) Delete(c *gin.Context) {
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid comment id", err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	if err := h.service.DeleteComment(c.Request.Context(), commentID, userID.(uint64), orgID.(uint64)); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,min=1,max=32"`
}

func (h *Handler) AddReaction(c *gin.Context) {
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid comment id", err))
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	comment, err := h.service.AddReaction(c.Request.Context(), commentID, userID.(uint64), req.Emoji)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

func (h *Handler) RemoveReaction(c *gin.Context) {
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid comment id", err))
		return
	}

	emoji := c.Param("emoji")
	if emoji == "" {
		c.Error(errors.BadRequest("Emoji is required", nil))
		return
	}

	userID, _ := c.Get("user_id")

	comment, err := h.service.RemoveReaction(c.Request.Context(), commentID, userID.(uint64), emoji)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, comment)
}
