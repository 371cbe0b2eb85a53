package event

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Filter struct {
	SessionID uint64
	Types     []string
	ActorID   *uint64
	From      *time.Time
	To        *time.Time
}

type Meta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, f Filter, page, pageSize int) ([]Event, Meta, error)
	ListSince(ctx context.Context, sessionID uint64, since time.Time) ([]Event, error)
	ListBetween(ctx context.Context, sessionID uint64, start, end time.Time) ([]Event, error)
	DeleteBySession(ctx context.Context, sessionID uint64, olderThan *time.Time) (int64, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *RepositoryImpl) List(ctx context.Context, f Filter, page, pageSize int) ([]Event, Meta, error) {
	var events []Event
	var totalRecords int64

	query := r.db.WithContext(ctx).Model(&Event{}).Where("session_id = ?", f.SessionID)
	if len(f.Types) > 0 {
		query = query.Where("type IN ?", f.Types)
	}
	if f.ActorID != nil {
		query = query.Where("actor_id = ?", *f.ActorID)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}

	if err := query.Count(&totalRecords).Error; err != nil {
		return events, Meta{}, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&events).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return events, Meta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *RepositoryImpl) ListSince(ctx context.Context, sessionID uint64, since time.Time) ([]Event, error) {
	var events []Event
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND created_at >= ?", sessionID, since).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (r *RepositoryImpl) ListBetween(ctx context.Context, sessionID uint64, start, end time.Time) ([]Event, error) {
	var events []Event
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND created_at >= ? AND created_at <= ?", sessionID, start, end).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (r *RepositoryImpl) DeleteBySession(ctx context.Context, sessionID uint64, olderThan *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if olderThan != nil {
		query = query.Where("created_at < ?", *olderThan)
	}
	result := query.Delete(&Event{})
	return result.RowsAffected, result.Error
}
