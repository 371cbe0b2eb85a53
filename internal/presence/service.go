package presence

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/event"
	"collab-engine/internal/session"
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionSource is the slice of the session store this service needs
type SessionSource interface {
	ActiveSessionIDsForUser(ctx context.Context, userID uint64) ([]uint64, error)
	ActiveParticipants(ctx context.Context, sessionID uint64) ([]session.Participant, error)
}

// Recorder is the slice of the event log this service needs
type Recorder interface {
	FanOut(ctx context.Context, sessionIDs []uint64, rec event.Record)
}

type UpdateInput struct {
	Status   string
	Location string
	Device   string
	Browser  string
}

// SessionPresence pairs a participant with their presence record
type SessionPresence struct {
	Participant session.Participant `json:"participant"`
	Presence    Record              `json:"presence"`
	IsActive    bool                `json:"is_active"`
}

type Service interface {
	UpdatePresence(ctx context.Context, userID uint64, input UpdateInput) (*Record, error)
	Heartbeat(ctx context.Context, userID uint64, location string) (*Record, error)
	ClearPresence(ctx context.Context, userID uint64) (*Record, error)
	CleanupStalePresence(ctx context.Context) (int, error)
	GetSessionPresence(ctx context.Context, sessionID uint64) ([]SessionPresence, error)
}

type DefaultService struct {
	repository Repository
	sessions   SessionSource
	recorder   Recorder
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(repository Repository, sessions SessionSource, recorder Recorder, log zerolog.Logger) *DefaultService {
	return &DefaultService{
		repository: repository,
		sessions:   sessions,
		recorder:   recorder,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *DefaultService) UpdatePresence(ctx context.Context, userID uint64, input UpdateInput) (*Record, error) {
	if !ValidStatus(input.Status) {
		return nil, errors.BadRequest("Status must be online, away, busy or offline", nil)
	}

	now := s.now()
	record, found, err := s.repository.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		record = &Record{UserID: userID, Status: StatusOffline}
	}

	statusChanged := record.Status != input.Status
	if statusChanged && input.Status == StatusOnline {
		record.OnlineSince = &now
	}
	if input.Status == StatusOffline {
		record.OnlineSince = nil
	}

	record.Status = input.Status
	record.LastSeen = now
	if input.Location != "" {
		record.Location = input.Location
	}
	if input.Device != "" {
		record.Device = input.Device
	}
	if input.Browser != "" {
		record.Browser = input.Browser
	}

	if err := s.repository.Set(ctx, record); err != nil {
		return nil, err
	}

	if statusChanged {
		s.broadcastStatus(ctx, userID, record.Status)
	}

	return record, nil
}

// Heartbeat refreshes LastSeen without touching an explicitly chosen status.
// An unknown user comes online.
func (s *DefaultService) Heartbeat(ctx context.Context, userID uint64, location string) (*Record, error) {
	now := s.now()
	record, found, err := s.repository.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !found {
		record = &Record{
			UserID:      userID,
			Status:      StatusOnline,
			LastSeen:    now,
			OnlineSince: &now,
		}
		if location != "" {
			record.Location = location
		}
		if err := s.repository.Set(ctx, record); err != nil {
			return nil, err
		}
		s.broadcastStatus(ctx, userID, record.Status)
		return record, nil
	}

	record.LastSeen = now
	if location != "" {
		record.Location = location
	}
	if err := s.repository.Set(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *DefaultService) ClearPresence(ctx context.Context, userID uint64) (*Record, error) {
	record, found, err := s.repository.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("No presence record for user", nil)
	}

	statusChanged := record.Status != StatusOffline
	record.Status = StatusOffline
	record.OnlineSince = nil
	record.LastSeen = s.now()

	if err := s.repository.Set(ctx, record); err != nil {
		return nil, err
	}

	if statusChanged {
		s.broadcastStatus(ctx, userID, StatusOffline)
	}

	return record, nil
}

// CleanupStalePresence forces records without a recent heartbeat offline.
// It is idempotent housekeeping run by the scheduler and deliberately emits
// no events.
func (s *DefaultService) CleanupStalePresence(ctx context.Context) (int, error) {
	records, err := s.repository.All(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	swept := 0
	for i := range records {
		record := &records[i]
		if !record.IsStale(now) {
			continue
		}
		record.Status = StatusOffline
		record.OnlineSince = nil
		if err := s.repository.Set(ctx, record); err != nil {
			s.log.Warn().Err(err).Uint64("user_id", record.UserID).Msg("stale presence write failed")
			continue
		}
		swept++
	}

	return swept, nil
}

func (s *DefaultService) GetSessionPresence(ctx context.Context, sessionID uint64) ([]SessionPresence, error) {
	participants, err := s.sessions.ActiveParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]SessionPresence, 0, len(participants))
	for _, participant := range participants {
		record, found, err := s.repository.Get(ctx, participant.UserID)
		if err != nil {
			return nil, err
		}
		if !found {
			record = &Record{UserID: participant.UserID, Status: StatusOffline}
		}
		result = append(result, SessionPresence{
			Participant: participant,
			Presence:    *record,
			IsActive:    record.IsActive(now),
		})
	}

	return result, nil
}

// broadcastStatus fans a presence_update to every session the user is
// currently active in.
func (s *DefaultService) broadcastStatus(ctx context.Context, userID uint64, status string) {
	sessionIDs, err := s.sessions.ActiveSessionIDsForUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint64("user_id", userID).Msg("active session lookup failed, skipping presence fan-out")
		return
	}

	s.recorder.FanOut(ctx, sessionIDs, event.Record{
		Type:    event.TypePresenceUpdate,
		ActorID: userID,
		Payload: event.Payload{"status": status},
	})
}
