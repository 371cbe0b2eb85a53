package session

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Type       string
	ActiveOnly bool
}

type SessionsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

type Repository interface {
	Create(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, id uint64) (*Session, error)
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindActiveByResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) (*Session, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]any) error
	End(ctx context.Context, id uint64, at time.Time) error
	ListForUser(ctx context.Context, userID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error)

	FindParticipant(ctx context.Context, sessionID, userID uint64) (*Participant, error)
	CreateParticipant(ctx context.Context, participant *Participant) error
	SaveParticipant(ctx context.Context, participant *Participant) error
	ActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error)
	TouchActivity(ctx context.Context, sessionID, userID uint64, counterColumn string) error

	ActiveSessionIDsForResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) ([]uint64, error)
	ResourceForSession(ctx context.Context, sessionID uint64) (uint64, string, error)
	ActiveSessionIDsForUser(ctx context.Context, userID uint64) ([]uint64, error)
	HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *RepositoryImpl) FindByID(ctx context.Context, id uint64) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Preload("Participants").First(&s, id).Error
	return &s, err
}

func (r *RepositoryImpl) FindByToken(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Preload("Participants").Where("token = ?", token).First(&s).Error
	return &s, err
}

func (r *RepositoryImpl) FindActiveByResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND resource_id = ? AND resource_type = ? AND status = ?",
			organizationID, resourceID, resourceType, StatusActive).
		First(&s).Error
	return &s, err
}

func (r *RepositoryImpl) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(fields).Error
}

func (r *RepositoryImpl) End(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusEnded,
		"ended_at":   at,
		"updated_at": at,
	}).Error
}

func (r *RepositoryImpl) ListForUser(ctx context.Context, userID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error) {
	var sessions []Session
	var totalRecords int64

	query := r.db.WithContext(ctx).Model(&Session{}).
		Joins("JOIN participants ON participants.session_id = sessions.id").
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID)

	if f.Type != "" {
		query = query.Where("sessions.type = ?", f.Type)
	}
	if f.ActiveOnly {
		query = query.Where("sessions.status = ?", StatusActive)
	}

	if err := query.Count(&totalRecords).Error; err != nil {
		return sessions, SessionsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("sessions.updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return sessions, SessionsMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *RepositoryImpl) FindParticipant(ctx context.Context, sessionID, userID uint64) (*Participant, error) {
	var p Participant
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&p).Error
	return &p, err
}

func (r *RepositoryImpl) CreateParticipant(ctx context.Context, participant *Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *RepositoryImpl) SaveParticipant(ctx context.Context, participant *Participant) error {
	return r.db.WithContext(ctx).Save(participant).Error
}

func (r *RepositoryImpl) ActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error) {
	var participants []Participant
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND left_at IS NULL", sessionID).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

func (r *RepositoryImpl) TouchActivity(ctx context.Context, sessionID, userID uint64, counterColumn string) error {
	updates := map[string]any{"last_activity": time.Now().UTC()}
	if counterColumn != "" {
		updates[counterColumn] = gorm.Expr(counterColumn+" + ?", 1)
	}
	return r.db.WithContext(ctx).Model(&Participant{}).
		Where("session_id = ? AND user_id = ? AND left_at IS NULL", sessionID, userID).
		Updates(updates).Error
}

// ActiveSessionIDsForResource is scoped to one organization, like the active
// session invariant itself; resource ids are not a tenant boundary.
func (r *RepositoryImpl) ActiveSessionIDsForResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("organization_id = ? AND resource_id = ? AND resource_type = ? AND status = ?",
			organizationID, resourceID, resourceType, StatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *RepositoryImpl) ResourceForSession(ctx context.Context, sessionID uint64) (uint64, string, error) {
	var s Session
	err := r.db.WithContext(ctx).Select("resource_id", "resource_type").First(&s, sessionID).Error
	if err != nil {
		return 0, "", err
	}
	return s.ResourceID, s.ResourceType, nil
}

func (r *RepositoryImpl) ActiveSessionIDsForUser(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&Participant{}).
		Joins("JOIN sessions ON sessions.id = participants.session_id").
		Where("participants.user_id = ? AND participants.left_at IS NULL AND sessions.status = ?", userID, StatusActive).
		Pluck("participants.session_id", &ids).Error
	return ids, err
}

func (r *RepositoryImpl) HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Participant{}).
		Where("session_id = ? AND user_id = ? AND left_at IS NULL AND role IN ?", sessionID, userID, roles).
		Count(&count).Error
	return count > 0, err
}
