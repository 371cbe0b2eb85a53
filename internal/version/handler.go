package version

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

type CreateDocumentRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=255"`
	Content string `json:"content"`
}

func (h *Handler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	doc, err := h.service.CreateDocument(c.Request.Context(), req.Title, req.Content, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ShowDocument(c *gin.Context) {
	docID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

type CreateVersionRequest struct {
	Content    string          `json:"content" binding:"required"`
	Changes    []ContentChange `json:"changes" binding:"dive"`
	Title      string          `json:"title" binding:"max=255"`
	Summary    string          `json:"summary" binding:"max=1000"`
	ChangeType string          `json:"change_type" binding:"omitempty,oneof=edit backup restore"`
	AutoSave   bool            `json:"auto_save"`
}

func (h *Handler) CreateVersion(c *gin.Context) {
	docID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	var req CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	v, err := h.service.CreateVersion(c.Request.Context(), CreateVersionInput{
		DocumentID:     docID,
		Content:        req.Content,
		Changes:        req.Changes,
		Title:          req.Title,
		Summary:        req.Summary,
		ChangeType:     req.ChangeType,
		AuthorID:       userID.(uint64),
		OrganizationID: orgID.(uint64),
		AutoSave:       req.AutoSave,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

type RestoreRequest struct {
	CreateBackup *bool `json:"create_backup"`
}

func (h *Handler) Restore(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("versionId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid version id", err))
		return
	}

	var req RestoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.NewValidationError(err))
			return
		}
	}

	createBackup := true
	if req.CreateBackup != nil {
		createBackup = *req.CreateBackup
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	restored, err := h.service.RestoreVersion(c.Request.Context(), versionID, userID.(uint64), orgID.(uint64), createBackup)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, restored)
}

func (h *Handler) DeleteVersion(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("versionId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid version id", err))
		return
	}

	userID, _ := c.Get("user_id")
	orgID, _ := c.Get("org_id")

	if err := h.service.DeleteVersion(c.Request.Context(), versionID, userID.(uint64), orgID.(uint64)); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Diff(c *gin.Context) {
	versionA, err := strconv.ParseUint(c.Query("a"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid version id a", err))
		return
	}
	versionB, err := strconv.ParseUint(c.Query("b"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid version id b", err))
		return
	}

	diff, err := h.service.GetVersionDiff(c.Request.Context(), versionA, versionB)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, diff)
}

func (h *Handler) History(c *gin.Context) {
	docID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid document id", err))
		return
	}

	filter := HistoryFilter{ChangeType: c.Query("change_type")}
	if authorStr := c.Query("author_id"); authorStr != "" {
		authorID, err := strconv.ParseUint(authorStr, 10, 64)
		if err != nil {
			c.Error(errors.BadRequest("Invalid author id", err))
			return
		}
		filter.AuthorID = &authorID
	}

	page, pageSize := utils.GetPaginationParams(c)
	versions, meta, err := h.service.GetDocumentHistory(c.Request.Context(), docID, filter, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": versions, "meta": meta})
}
