package session

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/event"
	"context"
	defError "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, session *Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockRepository) FindByID(ctx context.Context, id uint64) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) FindByToken(ctx context.Context, token string) (*Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) FindActiveByResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) (*Session, error) {
	args := m.Called(ctx, organizationID, resourceID, resourceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockRepository) End(ctx context.Context, id uint64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) ListForUser(ctx context.Context, userID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error) {
	args := m.Called(ctx, userID, f, page, pageSize)
	return args.Get(0).([]Session), args.Get(1).(SessionsMeta), args.Error(2)
}

func (m *MockRepository) FindParticipant(ctx context.Context, sessionID, userID uint64) (*Participant, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Participant), args.Error(1)
}

func (m *MockRepository) CreateParticipant(ctx context.Context, participant *Participant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *MockRepository) SaveParticipant(ctx context.Context, participant *Participant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *MockRepository) ActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Participant), args.Error(1)
}

func (m *MockRepository) TouchActivity(ctx context.Context, sessionID, userID uint64, counterColumn string) error {
	args := m.Called(ctx, sessionID, userID, counterColumn)
	return args.Error(0)
}

func (m *MockRepository) ActiveSessionIDsForResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) ([]uint64, error) {
	args := m.Called(ctx, organizationID, resourceID, resourceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockRepository) ResourceForSession(ctx context.Context, sessionID uint64) (uint64, string, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(uint64), args.String(1), args.Error(2)
}

func (m *MockRepository) ActiveSessionIDsForUser(ctx context.Context, userID uint64) ([]uint64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *MockRepository) HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error) {
	callArgs := []any{ctx, sessionID, userID}
	for _, role := range roles {
		callArgs = append(callArgs, role)
	}
	args := m.Called(callArgs...)
	return args.Bool(0), args.Error(1)
}

// MockRecorder is a mock implementation of the Recorder interface
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) FanOut(ctx context.Context, sessionIDs []uint64, rec event.Record) {
	m.Called(ctx, sessionIDs, rec)
}

func TestCreateSession_Success(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("FindActiveByResource", mock.Anything, uint64(10), uint64(42), "document").
		Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return s.ResourceID == 42 &&
			s.Status == StatusActive &&
			s.Token != "" &&
			len(s.Participants) == 3
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*Session).ID = 7
	})
	mockRecorder.On("FanOut", mock.Anything, []uint64{7}, mock.MatchedBy(func(rec event.Record) bool {
		return rec.Type == event.TypeSessionCreate && rec.ActorID == 1
	})).Return()

	created, err := service.CreateSession(context.Background(), CreateInput{
		ResourceID:   42,
		ResourceType: "document",
		Type:         "editing",
		Title:        "Q3 report",
		// creator in the initial list must not be duplicated
		InitialParticipants: []uint64{1, 2, 3},
	}, 1, 10)

	assert.NoError(t, err)
	assert.Equal(t, uint64(7), created.ID)
	assert.Equal(t, RoleOwner, created.Participants[0].Role)
	assert.Equal(t, uint64(1), created.Participants[0].UserID)
	assert.Equal(t, RoleMember, created.Participants[1].Role)
	mockRepo.AssertExpectations(t)
	mockRecorder.AssertExpectations(t)
}

func TestCreateSession_ConflictWhenActiveExists(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("FindActiveByResource", mock.Anything, uint64(10), uint64(42), "document").
		Return(&Session{ID: 1, Status: StatusActive}, nil)

	_, err := service.CreateSession(context.Background(), CreateInput{
		ResourceID:   42,
		ResourceType: "document",
		Type:         "editing",
		Title:        "duplicate",
	}, 1, 10)

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateSession_ConflictOnDuplicateKey(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	// the check races past, the partial unique index catches it
	mockRepo.On("FindActiveByResource", mock.Anything, uint64(10), uint64(42), "document").
		Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(gorm.ErrDuplicatedKey)

	_, err := service.CreateSession(context.Background(), CreateInput{
		ResourceID:   42,
		ResourceType: "document",
		Type:         "editing",
		Title:        "racing",
	}, 1, 10)

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)
}

func TestEndSession_RequiresOwner(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("FindByID", mock.Anything, uint64(5)).
		Return(&Session{ID: 5, Status: StatusActive}, nil)
	mockRepo.On("ActiveParticipants", mock.Anything, uint64(5)).
		Return([]Participant{{UserID: 2, Role: RoleAdmin}}, nil)

	_, err := service.EndSession(context.Background(), 5, 2)

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)
	mockRepo.AssertNotCalled(t, "End", mock.Anything, mock.Anything, mock.Anything)
}

func TestEndSession_Success(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	active := &Session{ID: 5, Status: StatusActive}
	mockRepo.On("FindByID", mock.Anything, uint64(5)).Return(active, nil)
	mockRepo.On("ActiveParticipants", mock.Anything, uint64(5)).
		Return([]Participant{{UserID: 1, Role: RoleOwner}}, nil)
	mockRepo.On("End", mock.Anything, uint64(5), mock.Anything).Return(nil)
	mockRecorder.On("FanOut", mock.Anything, []uint64{5}, mock.MatchedBy(func(rec event.Record) bool {
		return rec.Type == event.TypeSessionEnd
	})).Return()

	_, err := service.EndSession(context.Background(), 5, 1)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRecorder.AssertExpectations(t)
}

func TestJoinSession_RejoinClearsLeftAt(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	left := time.Now().UTC().Add(-time.Hour)
	mockRepo.On("FindByID", mock.Anything, uint64(5)).
		Return(&Session{ID: 5, Status: StatusActive}, nil)
	mockRepo.On("FindParticipant", mock.Anything, uint64(5), uint64(3)).
		Return(&Participant{SessionID: 5, UserID: 3, Role: RoleAdmin, LeftAt: &left}, nil)
	mockRepo.On("SaveParticipant", mock.Anything, mock.MatchedBy(func(p *Participant) bool {
		return p.LeftAt == nil
	})).Return(nil)
	mockRecorder.On("FanOut", mock.Anything, []uint64{5}, mock.Anything).Return()

	participant, err := service.JoinSession(context.Background(), 5, 3, RoleMember)

	assert.NoError(t, err)
	assert.Nil(t, participant.LeftAt)
	// rejoin keeps the stored role, not the requested one
	assert.Equal(t, RoleAdmin, participant.Role)
	mockRepo.AssertExpectations(t)
}

func TestJoinSession_EndedSession(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("FindByID", mock.Anything, uint64(5)).
		Return(&Session{ID: 5, Status: StatusEnded}, nil)

	_, err := service.JoinSession(context.Background(), 5, 3, "")

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 422, apiErr.Status)
}

func TestLeaveSession_SetsLeftAt(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("FindParticipant", mock.Anything, uint64(5), uint64(3)).
		Return(&Participant{SessionID: 5, UserID: 3, Role: RoleMember}, nil)
	mockRepo.On("SaveParticipant", mock.Anything, mock.MatchedBy(func(p *Participant) bool {
		return p.LeftAt != nil
	})).Return(nil)
	mockRecorder.On("FanOut", mock.Anything, []uint64{5}, mock.MatchedBy(func(rec event.Record) bool {
		return rec.Type == event.TypeUserLeave
	})).Return()

	err := service.LeaveSession(context.Background(), 5, 3)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUpdateSession_RequiresOwnerOrAdmin(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	mockRepo.On("ActiveParticipants", mock.Anything, uint64(5)).
		Return([]Participant{{UserID: 3, Role: RoleMember}}, nil)

	title := "new title"
	_, err := service.UpdateSession(context.Background(), 5, UpdateInput{Title: &title}, 3)

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)
}

func TestGetSessionByToken_NonParticipant(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRecorder := new(MockRecorder)
	service := NewService(mockRepo, mockRecorder)

	session := &Session{
		ID:           5,
		Token:        "tok-abc",
		Participants: []Participant{{UserID: 1, Role: RoleOwner}},
	}
	mockRepo.On("FindByToken", mock.Anything, "tok-abc").Return(session, nil)

	// participants see the session, outsiders get the same 404 as a bad token
	found, err := service.GetSessionByToken(context.Background(), "tok-abc", 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(5), found.ID)

	_, err = service.GetSessionByToken(context.Background(), "tok-abc", 9)
	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}
