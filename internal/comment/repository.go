package comment

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ThreadFilter struct {
	DocumentID uint64
	Resolved   *bool
	SortDesc   bool
}

type ThreadsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

type Repository interface {
	Create(ctx context.Context, comment *Comment) error
	FindByID(ctx context.Context, id uint64) (*Comment, error)
	Save(ctx context.Context, comment *Comment) error
	Delete(ctx context.Context, id uint64) error
	CountReplies(ctx context.Context, commentID uint64) (int64, error)
	ListRoots(ctx context.Context, f ThreadFilter, page, pageSize int) ([]Comment, ThreadsMeta, error)
	ListReplies(ctx context.Context, rootIDs []uint64) ([]Comment, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, comment *Comment) error {
	now := time.Now().UTC()
	comment.CreatedAt = now
	comment.UpdatedAt = now
	if comment.Reactions == nil {
		comment.Reactions = Reactions{}
	}
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *RepositoryImpl) FindByID(ctx context.Context, id uint64) (*Comment, error) {
	var c Comment
	err := r.db.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *RepositoryImpl) Save(ctx context.Context, comment *Comment) error {
	comment.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(comment).Error
}

func (r *RepositoryImpl) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Comment{}, id).Error
}

func (r *RepositoryImpl) CountReplies(ctx context.Context, commentID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Comment{}).
		Where("parent_id = ?", commentID).
		Count(&count).Error
	return count, err
}

func (r *RepositoryImpl) ListRoots(ctx context.Context, f ThreadFilter, page, pageSize int) ([]Comment, ThreadsMeta, error) {
	var roots []Comment
	var totalRecords int64

	query := r.db.WithContext(ctx).Model(&Comment{}).
		Where("document_id = ? AND parent_id IS NULL", f.DocumentID)
	if f.Resolved != nil {
		query = query.Where("resolved = ?", *f.Resolved)
	}

	if err := query.Count(&totalRecords).Error; err != nil {
		return roots, ThreadsMeta{}, err
	}

	order := "created_at ASC"
	if f.SortDesc {
		order = "created_at DESC"
	}

	offset := (page - 1) * pageSize
	err := query.Order(order).
		Offset(offset).
		Limit(pageSize).
		Find(&roots).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return roots, ThreadsMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *RepositoryImpl) ListReplies(ctx context.Context, rootIDs []uint64) ([]Comment, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	var replies []Comment
	err := r.db.WithContext(ctx).
		Where("parent_id IN ?", rootIDs).
		Order("created_at ASC").
		Find(&replies).Error
	return replies, err
}
