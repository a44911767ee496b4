package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logichat/internal/app"
	"logichat/internal/fanout"
	"logichat/internal/model"
	"logichat/internal/transport/http/handler"
	"logichat/internal/transport/http/middleware"
	"logichat/internal/transport/http/response"
)

// Func-field mocks implementing the app store interfaces.
type mockSessionStore struct {
	GetOrCreateFunc       func(customerID, clientID, subject, serviceContext string) (*model.ChatSession, bool, error)
	GetByIDFunc           func(sessionID string) (*model.ChatSession, error)
	ListByParticipantFunc func(userID, role string, page, perPage int) ([]model.ChatSession, error)
	CloseFunc             func(sessionID, closedBy string, at time.Time) (*model.ChatSession, error)
}

func (m *mockSessionStore) GetOrCreate(customerID, clientID, subject, serviceContext string) (*model.ChatSession, bool, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(customerID, clientID, subject, serviceContext)
	}
	return nil, false, nil
}

func (m *mockSessionStore) GetByID(sessionID string) (*model.ChatSession, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(sessionID)
	}
	return nil, nil
}

func (m *mockSessionStore) ListByParticipant(userID, role string, page, perPage int) ([]model.ChatSession, error) {
	if m.ListByParticipantFunc != nil {
		return m.ListByParticipantFunc(userID, role, page, perPage)
	}
	return nil, nil
}

func (m *mockSessionStore) Close(sessionID, closedBy string, at time.Time) (*model.ChatSession, error) {
	if m.CloseFunc != nil {
		return m.CloseFunc(sessionID, closedBy, at)
	}
	return nil, nil
}

type mockMessageStore struct {
	AppendFunc          func(msg *model.Message, refs []model.AttachmentRef) (*model.Message, error)
	ListBySessionIDFunc func(sessionID string, page, perPage int) ([]model.Message, error)
	MarkReadFunc        func(sessionID, readerID string, upTo time.Time) (int64, error)
	CountUnreadFunc     func(userID, role string) (int64, error)
	SearchFunc          func(sessionID, term string, limit int) ([]model.Message, error)
}

func (m *mockMessageStore) Append(msg *model.Message, refs []model.AttachmentRef) (*model.Message, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(msg, refs)
	}
	return msg, nil
}

func (m *mockMessageStore) ListBySessionID(sessionID string, page, perPage int) ([]model.Message, error) {
	if m.ListBySessionIDFunc != nil {
		return m.ListBySessionIDFunc(sessionID, page, perPage)
	}
	return nil, nil
}

func (m *mockMessageStore) MarkRead(sessionID, readerID string, upTo time.Time) (int64, error) {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(sessionID, readerID, upTo)
	}
	return 0, nil
}

func (m *mockMessageStore) CountUnread(userID, role string) (int64, error) {
	if m.CountUnreadFunc != nil {
		return m.CountUnreadFunc(userID, role)
	}
	return 0, nil
}

func (m *mockMessageStore) Search(sessionID, term string, limit int) ([]model.Message, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(sessionID, term, limit)
	}
	return nil, nil
}

func testSession() *model.ChatSession {
	return &model.ChatSession{
		ID:            "sess-1",
		CustomerID:    "user-1",
		ClientID:      "user-2",
		Subject:       "Quote",
		Status:        model.SessionStatusActive,
		LastMessageAt: time.Now(),
	}
}

func newTestRouter(sessions *mockSessionStore, messages *mockMessageStore, userID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	service := app.NewChatService(sessions, messages, nil, nil, nil, fanout.NewHub(8), 50, 100)
	chatHandler := handler.NewChatHandler(service)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Set(middleware.ContextRoleKey, role)
		c.Next()
	})
	router.POST("/chat/sessions", chatHandler.CreateOrGetSession)
	router.GET("/chat/sessions", chatHandler.ListSessions)
	router.POST("/chat/sessions/:id/close", chatHandler.CloseSession)
	router.POST("/chat/messages", chatHandler.SendMessage)
	router.GET("/chat/messages", chatHandler.ListMessages)
	router.GET("/chat/unread", chatHandler.UnreadCount)
	return router
}

func decodeEnvelope(t *testing.T, body []byte) response.APIResponse {
	t.Helper()
	var envelope response.APIResponse
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope
}

func TestCreateOrGetSessionHandler(t *testing.T) {
	sessions := &mockSessionStore{
		GetOrCreateFunc: func(customerID, clientID, subject, serviceContext string) (*model.ChatSession, bool, error) {
			assert.Equal(t, "user-1", customerID)
			assert.Equal(t, "user-2", clientID)
			assert.Equal(t, "Quote", subject)
			return testSession(), true, nil
		},
	}
	router := newTestRouter(sessions, &mockMessageStore{}, "user-1", model.RoleCustomer)

	payload := `{"peer_id":"user-2","subject":"Quote","service_context":"CFS"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, response.CodeOK, envelope.Code)
}

func TestSendMessageHandlerRequiresSessionID(t *testing.T) {
	router := newTestRouter(&mockSessionStore{}, &mockMessageStore{}, "user-1", model.RoleCustomer)

	form := url.Values{"content": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageHandlerRejectsClosedSession(t *testing.T) {
	closed := testSession()
	closed.Status = model.SessionStatusClosed
	sessions := &mockSessionStore{
		GetByIDFunc: func(sessionID string) (*model.ChatSession, error) {
			return closed, nil
		},
	}
	router := newTestRouter(sessions, &mockMessageStore{}, "user-1", model.RoleCustomer)

	form := url.Values{"session_id": {"sess-1"}, "content": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, response.CodeSessionClosed, envelope.Code)
}

func TestListMessagesHandlerForbidsNonParticipant(t *testing.T) {
	sessions := &mockSessionStore{
		GetByIDFunc: func(sessionID string) (*model.ChatSession, error) {
			return testSession(), nil
		},
	}
	router := newTestRouter(sessions, &mockMessageStore{}, "intruder", model.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/chat/messages?session_id=sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, response.CodeForbidden, envelope.Code)
}

func TestUnreadCountHandler(t *testing.T) {
	messages := &mockMessageStore{
		CountUnreadFunc: func(userID, role string) (int64, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, model.RoleCustomer, role)
			return 7, nil
		},
	}
	router := newTestRouter(&mockSessionStore{}, messages, "user-1", model.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/chat/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(7), data["unread"])
}

func TestCloseSessionHandler(t *testing.T) {
	active := testSession()
	sessions := &mockSessionStore{
		GetByIDFunc: func(sessionID string) (*model.ChatSession, error) {
			return active, nil
		},
		CloseFunc: func(sessionID, closedBy string, at time.Time) (*model.ChatSession, error) {
			closed := testSession()
			closed.Status = model.SessionStatusClosed
			closed.ClosedBy = closedBy
			closed.ClosedAt = &at
			return closed, nil
		},
	}
	router := newTestRouter(sessions, &mockMessageStore{}, "user-2", model.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/sess-1/close", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, model.SessionStatusClosed, data["status"])
	assert.Equal(t, "user-2", data["closed_by"])
}
