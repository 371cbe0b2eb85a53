package session

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/event"
	"context"
	defError "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recorder is the slice of the event log this service needs
type Recorder interface {
	FanOut(ctx context.Context, sessionIDs []uint64, rec event.Record)
}

type CreateInput struct {
	ResourceID          uint64
	ResourceType        string
	Type                string
	Title               string
	Description         *string
	Settings            Settings
	InitialParticipants []uint64
}

type UpdateInput struct {
	Title       *string
	Description *string
	Type        *string
	Settings    *Settings
}

type Service interface {
	CreateSession(ctx context.Context, input CreateInput, creatorID, organizationID uint64) (*Session, error)
	GetSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error)
	GetSessionByToken(ctx context.Context, token string, requestingUserID uint64) (*Session, error)
	UpdateSession(ctx context.Context, sessionID uint64, input UpdateInput, requestingUserID uint64) (*Session, error)
	EndSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error)
	ListSessions(ctx context.Context, requestingUserID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error)
	JoinSession(ctx context.Context, sessionID, userID uint64, role string) (*Participant, error)
	LeaveSession(ctx context.Context, sessionID, userID uint64) error
	GetActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error)
}

type DefaultService struct {
	repository Repository
	recorder   Recorder
}

func NewService(repository Repository, recorder Recorder) Service {
	return &DefaultService{
		repository: repository,
		recorder:   recorder,
	}
}

func (s *DefaultService) CreateSession(ctx context.Context, input CreateInput, creatorID, organizationID uint64) (*Session, error) {
	if input.ResourceID == 0 || input.ResourceType == "" {
		return nil, errors.BadRequest("Session resource is required", nil)
	}

	// Check-then-create; the partial unique index on the sessions table is
	// the real guard against two concurrent winners.
	_, err := s.repository.FindActiveByResource(ctx, organizationID, input.ResourceID, input.ResourceType)
	if err == nil {
		return nil, errors.Conflict("An active session already exists for this resource", nil)
	}
	if !defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		Token:          uuid.NewString(),
		ResourceID:     input.ResourceID,
		ResourceType:   input.ResourceType,
		Type:           input.Type,
		Title:          input.Title,
		Description:    input.Description,
		Settings:       input.Settings,
		Status:         StatusActive,
		OrganizationID: organizationID,
		CreatedByID:    creatorID,
		Participants: []Participant{
			{
				UserID:       creatorID,
				Role:         RoleOwner,
				JoinedAt:     now,
				LastActivity: now,
			},
		},
	}

	for _, userID := range input.InitialParticipants {
		if userID == creatorID {
			continue
		}
		session.Participants = append(session.Participants, Participant{
			UserID:       userID,
			Role:         RoleMember,
			JoinedAt:     now,
			LastActivity: now,
		})
	}

	if err := s.repository.Create(ctx, session); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("An active session already exists for this resource", err)
		}
		return nil, err
	}

	s.recorder.FanOut(ctx, []uint64{session.ID}, event.Record{
		Type:    event.TypeSessionCreate,
		ActorID: creatorID,
		Payload: event.Payload{
			"resource_id":   session.ResourceID,
			"resource_type": session.ResourceType,
			"session_type":  session.Type,
		},
	})

	return session, nil
}

func (s *DefaultService) GetSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error) {
	session, err := s.repository.FindByID(ctx, sessionID)
	return s.visibleTo(session, requestingUserID, err)
}

func (s *DefaultService) GetSessionByToken(ctx context.Context, token string, requestingUserID uint64) (*Session, error) {
	session, err := s.repository.FindByToken(ctx, token)
	return s.visibleTo(session, requestingUserID, err)
}

func (s *DefaultService) visibleTo(session *Session, requestingUserID uint64, err error) (*Session, error) {
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Session not found", err)
		}
		return nil, err
	}

	if !isParticipant(session.Participants, requestingUserID) {
		// no visibility outside the roster
		return nil, errors.NotFound("Session not found", nil)
	}

	return session, nil
}

func (s *DefaultService) UpdateSession(ctx context.Context, sessionID uint64, input UpdateInput, requestingUserID uint64) (*Session, error) {
	participants, err := s.repository.ActiveParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !HasRole(participants, requestingUserID, RoleOwner, RoleAdmin) {
		return nil, errors.Forbidden("Only session owner or admin can update the session", nil)
	}

	fields := map[string]any{}
	if input.Title != nil {
		fields["title"] = *input.Title
	}
	if input.Description != nil {
		fields["description"] = *input.Description
	}
	if input.Type != nil {
		fields["type"] = *input.Type
	}
	if input.Settings != nil {
		fields["settings"] = *input.Settings
	}
	if len(fields) == 0 {
		return nil, errors.BadRequest("No fields to update", nil)
	}

	if err := s.repository.UpdateFields(ctx, sessionID, fields); err != nil {
		return nil, err
	}

	s.recorder.FanOut(ctx, []uint64{sessionID}, event.Record{
		Type:    event.TypeSessionUpdate,
		ActorID: requestingUserID,
		Payload: event.Payload{"updated_fields": fieldNames(fields)},
	})

	return s.repository.FindByID(ctx, sessionID)
}

func (s *DefaultService) EndSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error) {
	session, err := s.repository.FindByID(ctx, sessionID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Session not found", err)
		}
		return nil, err
	}
	if session.Status == StatusEnded {
		return nil, errors.UnprocessableEntity("Session already ended", nil)
	}

	participants, err := s.repository.ActiveParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !HasRole(participants, requestingUserID, RoleOwner) {
		return nil, errors.Forbidden("Only the session owner can end the session", nil)
	}

	now := time.Now().UTC()
	if err := s.repository.End(ctx, sessionID, now); err != nil {
		return nil, err
	}

	s.recorder.FanOut(ctx, []uint64{sessionID}, event.Record{
		Type:    event.TypeSessionEnd,
		ActorID: requestingUserID,
	})

	return s.repository.FindByID(ctx, sessionID)
}

func (s *DefaultService) ListSessions(ctx context.Context, requestingUserID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error) {
	return s.repository.ListForUser(ctx, requestingUserID, f, page, pageSize)
}

func (s *DefaultService) JoinSession(ctx context.Context, sessionID, userID uint64, role string) (*Participant, error) {
	session, err := s.repository.FindByID(ctx, sessionID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Session not found", err)
		}
		return nil, err
	}
	if session.Status != StatusActive {
		return nil, errors.UnprocessableEntity("Can't join an ended session", nil)
	}

	if role == "" {
		role = RoleMember
	}

	now := time.Now().UTC()
	participant, err := s.repository.FindParticipant(ctx, sessionID, userID)
	switch {
	case err == nil:
		// rejoin: clear left_at and refresh activity, keep the stored role
		participant.LeftAt = nil
		participant.LastActivity = now
		if err := s.repository.SaveParticipant(ctx, participant); err != nil {
			return nil, err
		}
	case defError.Is(err, gorm.ErrRecordNotFound):
		participant = &Participant{
			SessionID:    sessionID,
			UserID:       userID,
			Role:         role,
			JoinedAt:     now,
			LastActivity: now,
		}
		if err := s.repository.CreateParticipant(ctx, participant); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.recorder.FanOut(ctx, []uint64{sessionID}, event.Record{
		Type:    event.TypeUserJoin,
		ActorID: userID,
		Payload: event.Payload{"role": participant.Role},
	})

	return participant, nil
}

func (s *DefaultService) LeaveSession(ctx context.Context, sessionID, userID uint64) error {
	participant, err := s.repository.FindParticipant(ctx, sessionID, userID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Participant not found", err)
		}
		return err
	}

	now := time.Now().UTC()
	participant.LeftAt = &now
	if err := s.repository.SaveParticipant(ctx, participant); err != nil {
		return err
	}

	s.recorder.FanOut(ctx, []uint64{sessionID}, event.Record{
		Type:    event.TypeUserLeave,
		ActorID: userID,
	})

	return nil
}

func (s *DefaultService) GetActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error) {
	return s.repository.ActiveParticipants(ctx, sessionID)
}

func isParticipant(participants []Participant, userID uint64) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names
}
