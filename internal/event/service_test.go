package event

import (
	"collab-engine/internal/errors"
	"context"
	defError "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, event *Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context, f Filter, page, pageSize int) ([]Event, Meta, error) {
	args := m.Called(ctx, f, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(Meta), args.Error(2)
	}
	return args.Get(0).([]Event), args.Get(1).(Meta), args.Error(2)
}

func (m *MockRepository) ListSince(ctx context.Context, sessionID uint64, since time.Time) ([]Event, error) {
	args := m.Called(ctx, sessionID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Event), args.Error(1)
}

func (m *MockRepository) ListBetween(ctx context.Context, sessionID uint64, start, end time.Time) ([]Event, error) {
	args := m.Called(ctx, sessionID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Event), args.Error(1)
}

func (m *MockRepository) DeleteBySession(ctx context.Context, sessionID uint64, olderThan *time.Time) (int64, error) {
	args := m.Called(ctx, sessionID, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockRoleChecker is a mock implementation of the RoleChecker interface
type MockRoleChecker struct {
	mock.Mock
}

func (m *MockRoleChecker) HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error) {
	args := m.Called(ctx, sessionID, userID, roles)
	return args.Bool(0), args.Error(1)
}

func newTestService(repo Repository, roles RoleChecker) Service {
	return NewService(repo, roles, zerolog.Nop())
}

func TestAppend_RequiredFields(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	_, err := service.Append(context.Background(), Record{Type: TypeUserJoin, ActorID: 1})
	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)

	_, err = service.Append(context.Background(), Record{SessionID: 1, ActorID: 1})
	assert.Error(t, err)

	_, err = service.Append(context.Background(), Record{SessionID: 1, Type: TypeUserJoin})
	assert.Error(t, err)

	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFanOut_ContinuesPastFailures(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *Event) bool {
		return e.SessionID == 1
	})).Return(defError.New("store down"))
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *Event) bool {
		return e.SessionID == 2
	})).Return(nil)

	// a failed sibling append must not stop the loop
	service.FanOut(context.Background(), []uint64{1, 2}, Record{
		Type:    TypeDocumentChange,
		ActorID: 9,
	})

	mockRepo.AssertNumberOfCalls(t, "Create", 2)
}

func TestDeleteEvents_RequiresRole(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRoles := new(MockRoleChecker)
	service := newTestService(mockRepo, mockRoles)

	mockRoles.On("HasActiveRole", mock.Anything, uint64(5), uint64(3), []string{"owner", "admin"}).
		Return(false, nil)

	_, err := service.DeleteEvents(context.Background(), 5, nil, 3)

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)
	mockRepo.AssertNotCalled(t, "DeleteBySession", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteEvents_WithCutoff(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRoles := new(MockRoleChecker)
	service := newTestService(mockRepo, mockRoles)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	mockRoles.On("HasActiveRole", mock.Anything, uint64(5), uint64(1), []string{"owner", "admin"}).
		Return(true, nil)
	mockRepo.On("DeleteBySession", mock.Anything, uint64(5), &cutoff).Return(int64(12), nil)

	deleted, err := service.DeleteEvents(context.Background(), 5, &cutoff, 1)

	assert.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	mockRepo.AssertExpectations(t)
}

func eventAt(ts time.Time, eventType string, actorID uint64) Event {
	return Event{SessionID: 5, Type: eventType, ActorID: actorID, CreatedAt: ts}
}

func TestSummarize_Counts(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	base := time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC)
	events := []Event{
		eventAt(base, TypeDocumentChange, 1),
		eventAt(base.Add(5*time.Minute), TypeCommentAdd, 2),
		eventAt(base.Add(10*time.Minute), TypeCommentResolve, 2),
		eventAt(base.Add(70*time.Minute), TypeConflictDetected, 1),
		eventAt(base.Add(75*time.Minute), TypeUserJoin, 3),
	}
	mockRepo.On("ListSince", mock.Anything, uint64(5), mock.Anything).Return(events, nil)

	summary, err := service.Summarize(context.Background(), 5, "day")

	assert.NoError(t, err)
	assert.Equal(t, 5, summary.TotalEvents)
	assert.Equal(t, 3, summary.ActiveUsers)
	assert.Equal(t, 1, summary.DocumentChanges)
	assert.Equal(t, 2, summary.CommentActivity)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, 2, summary.ByType[TypeCommentAdd]+summary.ByType[TypeCommentResolve])
	assert.Equal(t, 2, summary.ByActor[2])

	// two hour buckets, ascending
	assert.Len(t, summary.HourlyTimeline, 2)
	assert.Equal(t, base.Truncate(time.Hour), summary.HourlyTimeline[0].Hour)
	assert.Equal(t, 3, summary.HourlyTimeline[0].Count)
	assert.Equal(t, 2, summary.HourlyTimeline[1].Count)
}

func TestSummarize_UnknownWindow(t *testing.T) {
	service := newTestService(new(MockRepository), new(MockRoleChecker))

	_, err := service.Summarize(context.Background(), 5, "month")

	var apiErr *errors.APIError
	assert.True(t, defError.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
}

func TestMetrics_Aggregates(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	events := []Event{
		eventAt(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), TypeDocumentChange, 1),
		eventAt(time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC), TypeDocumentChange, 1),
		eventAt(time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC), TypeCommentAdd, 2),
		eventAt(time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC), TypeUserJoin, 2),
	}
	mockRepo.On("ListBetween", mock.Anything, uint64(5), start, end).Return(events, nil)

	report, err := service.Metrics(context.Background(), 5, start, end)

	assert.NoError(t, err)
	assert.Equal(t, 4, report.TotalEvents)
	assert.Equal(t, 2, report.DistinctActors)
	assert.Equal(t, 2.0, report.AvgPerActor)
	assert.Equal(t, 2, report.ByType[TypeDocumentChange])
	assert.Equal(t, 3, report.ByHourOfDay[9])
	assert.Equal(t, 3, report.ByDay["2026-08-01"])
	assert.Equal(t, 9, report.PeakHour)
	assert.Equal(t, "2026-08-01", report.PeakDay)
}

func TestMetrics_PeakTieBreakIsEarliest(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	events := []Event{
		eventAt(time.Date(2026, 8, 1, 16, 0, 0, 0, time.UTC), TypeCommentAdd, 1),
		eventAt(time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC), TypeCommentAdd, 1),
	}
	mockRepo.On("ListBetween", mock.Anything, uint64(5), start, end).Return(events, nil)

	report, err := service.Metrics(context.Background(), 5, start, end)

	assert.NoError(t, err)
	// one event in each bucket: the earlier hour and day win
	assert.Equal(t, 8, report.PeakHour)
	assert.Equal(t, "2026-08-01", report.PeakDay)
}

func TestMetrics_NoActors(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockRoleChecker))

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	mockRepo.On("ListBetween", mock.Anything, uint64(5), start, end).Return([]Event{}, nil)

	report, err := service.Metrics(context.Background(), 5, start, end)

	assert.NoError(t, err)
	assert.Equal(t, 0, report.TotalEvents)
	assert.Equal(t, 0.0, report.AvgPerActor)
}
