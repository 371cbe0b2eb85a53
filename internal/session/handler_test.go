package session

import (
	"bytes"
	"collab-engine/internal/errors"
	"collab-engine/internal/middleware"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateSession(ctx context.Context, input CreateInput, creatorID, organizationID uint64) (*Session, error) {
	args := m.Called(ctx, input, creatorID, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockService) GetSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error) {
	args := m.Called(ctx, sessionID, requestingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockService) GetSessionByToken(ctx context.Context, token string, requestingUserID uint64) (*Session, error) {
	args := m.Called(ctx, token, requestingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockService) UpdateSession(ctx context.Context, sessionID uint64, input UpdateInput, requestingUserID uint64) (*Session, error) {
	args := m.Called(ctx, sessionID, input, requestingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockService) EndSession(ctx context.Context, sessionID, requestingUserID uint64) (*Session, error) {
	args := m.Called(ctx, sessionID, requestingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockService) ListSessions(ctx context.Context, requestingUserID uint64, f ListFilter, page, pageSize int) ([]Session, SessionsMeta, error) {
	args := m.Called(ctx, requestingUserID, f, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(SessionsMeta), args.Error(2)
	}
	return args.Get(0).([]Session), args.Get(1).(SessionsMeta), args.Error(2)
}

func (m *MockService) JoinSession(ctx context.Context, sessionID, userID uint64, role string) (*Participant, error) {
	args := m.Called(ctx, sessionID, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Participant), args.Error(1)
}

func (m *MockService) LeaveSession(ctx context.Context, sessionID, userID uint64) error {
	args := m.Called(ctx, sessionID, userID)
	return args.Error(0)
}

func (m *MockService) GetActiveParticipants(ctx context.Context, sessionID uint64) ([]Participant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Participant), args.Error(1)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler(zerolog.Nop()))
	router.Use(func(c *gin.Context) {
		c.Set("user_id", uint64(1))
		c.Set("org_id", uint64(10))
		c.Next()
	})
	return router
}

func TestCreateSessionHandler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/sessions", handler.Create)

	mockService.On("CreateSession", mock.Anything, mock.MatchedBy(func(input CreateInput) bool {
		return input.ResourceID == 42 && input.ResourceType == "document" && input.Title == "Q3 report"
	}), uint64(1), uint64(10)).Return(&Session{ID: 7, Title: "Q3 report", Status: StatusActive}, nil)

	payload := CreateRequest{
		ResourceID:   42,
		ResourceType: "document",
		Type:         "editing",
		Title:        "Q3 report",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/sessions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response Session
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, uint64(7), response.ID)
	mockService.AssertExpectations(t)
}

func TestCreateSessionHandler_InvalidInput(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/sessions", handler.Create)

	payload := map[string]any{"title": "missing resource"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/sessions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSessionHandler_Conflict(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/sessions", handler.Create)

	mockService.On("CreateSession", mock.Anything, mock.Anything, uint64(1), uint64(10)).
		Return(nil, errors.Conflict("An active session already exists for this resource", nil))

	payload := CreateRequest{
		ResourceID:   42,
		ResourceType: "document",
		Type:         "editing",
		Title:        "duplicate",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/sessions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinHandler_DefaultRole(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.POST("/sessions/:id/join", handler.Join)

	mockService.On("JoinSession", mock.Anything, uint64(5), uint64(1), "").
		Return(&Participant{SessionID: 5, UserID: 1, Role: RoleMember}, nil)

	req := httptest.NewRequest("POST", "/sessions/5/join", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestListHandler_Filters(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService)
	router := setupRouter()
	router.GET("/sessions", handler.List)

	mockService.On("ListSessions", mock.Anything, uint64(1), ListFilter{Type: "editing", ActiveOnly: true}, 2, 20).
		Return([]Session{{ID: 7}}, SessionsMeta{Total: 1, CurrentPage: 2, PerPage: 20, TotalPage: 1}, nil)

	req := httptest.NewRequest("GET", "/sessions?type=editing&active=true&page=2&per_page=20", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}
