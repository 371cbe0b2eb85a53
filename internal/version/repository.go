package version

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type HistoryFilter struct {
	ChangeType string
	AuthorID   *uint64
}

type HistoryMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

type Repository interface {
	CreateDocument(ctx context.Context, document *Document) error
	FindDocumentByID(ctx context.Context, id uint64) (*Document, error)

	MaxVersion(ctx context.Context, documentID uint64) (int, error)
	ApplyCreate(ctx context.Context, v *DocumentVersion) error
	ApplyRestore(ctx context.Context, documentID uint64, backup, restore *DocumentVersion, newCurrent int, newContent string) error
	FindVersionByID(ctx context.Context, id uint64) (*DocumentVersion, error)
	DeleteVersion(ctx context.Context, id uint64) (int64, error)
	ListHistory(ctx context.Context, documentID uint64, f HistoryFilter, page, pageSize int) ([]DocumentVersion, HistoryMeta, error)
	DeleteEditVersionsBeyond(ctx context.Context, documentID uint64, keepCount int) (int64, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateDocument(ctx context.Context, document *Document) error {
	now := time.Now().UTC()
	document.CreatedAt = now
	document.UpdatedAt = now
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *RepositoryImpl) FindDocumentByID(ctx context.Context, id uint64) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	return &doc, err
}

func (r *RepositoryImpl) MaxVersion(ctx context.Context, documentID uint64) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&DocumentVersion{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	return max, err
}

// ApplyCreate inserts the version and moves the document pointer and live
// content to it, in one transaction.
func (r *RepositoryImpl) ApplyCreate(ctx context.Context, v *DocumentVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		return tx.Model(&Document{}).Where("id = ?", v.DocumentID).Updates(map[string]any{
			"current_version": v.Version,
			"content":         v.Content,
			"updated_at":      time.Now().UTC(),
		}).Error
	})
}

// ApplyRestore writes the backup row (when present), the restore row and the
// document pointer update in a single transaction, so the pointer can never
// be observed ahead of or behind its version rows.
func (r *RepositoryImpl) ApplyRestore(ctx context.Context, documentID uint64, backup, restore *DocumentVersion, newCurrent int, newContent string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if backup != nil {
			if err := tx.Create(backup).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(restore).Error; err != nil {
			return err
		}
		return tx.Model(&Document{}).Where("id = ?", documentID).Updates(map[string]any{
			"current_version": newCurrent,
			"content":         newContent,
			"updated_at":      time.Now().UTC(),
		}).Error
	})
}

func (r *RepositoryImpl) FindVersionByID(ctx context.Context, id uint64) (*DocumentVersion, error) {
	var v DocumentVersion
	err := r.db.WithContext(ctx).First(&v, id).Error
	return &v, err
}

func (r *RepositoryImpl) DeleteVersion(ctx context.Context, id uint64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&DocumentVersion{}, id)
	return result.RowsAffected, result.Error
}

func (r *RepositoryImpl) ListHistory(ctx context.Context, documentID uint64, f HistoryFilter, page, pageSize int) ([]DocumentVersion, HistoryMeta, error) {
	var versions []DocumentVersion
	var totalRecords int64

	query := r.db.WithContext(ctx).Model(&DocumentVersion{}).Where("document_id = ?", documentID)
	if f.ChangeType != "" {
		query = query.Where("change_type = ?", f.ChangeType)
	}
	if f.AuthorID != nil {
		query = query.Where("author_id = ?", *f.AuthorID)
	}

	if err := query.Count(&totalRecords).Error; err != nil {
		return versions, HistoryMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("version DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&versions).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return versions, HistoryMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

// DeleteEditVersionsBeyond drops edit-type versions past the keepCount
// newest ones (by version number).
func (r *RepositoryImpl) DeleteEditVersionsBeyond(ctx context.Context, documentID uint64, keepCount int) (int64, error) {
	var staleIDs []uint64
	err := r.db.WithContext(ctx).Model(&DocumentVersion{}).
		Where("document_id = ? AND change_type = ?", documentID, ChangeTypeEdit).
		Order("version DESC").
		Offset(keepCount).
		Limit(-1).
		Pluck("id", &staleIDs).Error
	if err != nil {
		return 0, err
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Delete(&DocumentVersion{}, staleIDs)
	return result.RowsAffected, result.Error
}
