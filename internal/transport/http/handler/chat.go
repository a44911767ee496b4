package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"logichat/internal/app"
	"logichat/internal/attachment"
	"logichat/internal/model"
	"logichat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateSessionRequest struct {
	PeerID         string `json:"peer_id" binding:"required"`
	Subject        string `json:"subject" binding:"max=256"`
	ServiceContext string `json:"service_context" binding:"max=32"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateOrGetSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	// The caller's role decides which slot they occupy; GOL operators chat
	// from the client slot.
	input := app.CreateSessionInput{
		Subject:        req.Subject,
		ServiceContext: req.ServiceContext,
	}
	if getRoleFromContext(c) == model.RoleCustomer {
		input.CustomerID = userID
		input.ClientID = req.PeerID
	} else {
		input.CustomerID = req.PeerID
		input.ClientID = userID
	}

	session, err := h.chatService.CreateOrGetSession(input)
	if err != nil {
		mapChatError(c, err, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chatService.ListSessions(
		userID,
		getRoleFromContext(c),
		queryInt(c, "page", 1),
		queryInt(c, "per_page", 0),
	)
	if err != nil {
		mapChatError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) CloseSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	session, err := h.chatService.CloseSession(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		mapChatError(c, err, "close session failed")
		return
	}
	response.OK(c, session)
}

// SendMessage accepts multipart form data so text and attachments travel in
// one request: fields session_id, content, client_key and zero or more
// attachments files.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "session_id is required")
		return
	}

	var uploads []attachment.Upload
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, header := range form.File["attachments"] {
			file, openErr := header.Open()
			if openErr != nil {
				response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read attachment failed")
				return
			}
			defer file.Close()

			uploads = append(uploads, attachment.Upload{
				Name:     header.Filename,
				ByteSize: header.Size,
				MimeType: header.Header.Get("Content-Type"),
				Body:     file,
			})
		}
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		SessionID: sessionID,
		SenderID:  userID,
		Content:   c.PostForm("content"),
		ClientKey: c.PostForm("client_key"),
		Uploads:   uploads,
	})
	if err != nil {
		mapChatError(c, err, "send message failed")
		return
	}
	response.OK(c, message)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "session_id is required")
		return
	}

	messages, err := h.chatService.ListMessages(
		sessionID,
		userID,
		queryInt(c, "page", 1),
		queryInt(c, "per_page", 0),
	)
	if err != nil {
		mapChatError(c, err, "list messages failed")
		return
	}
	response.OK(c, messages)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	count, err := h.chatService.MarkRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		mapChatError(c, err, "mark read failed")
		return
	}
	response.OK(c, gin.H{"marked_read": count})
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), userID, getRoleFromContext(c))
	if err != nil {
		mapChatError(c, err, "unread count failed")
		return
	}
	response.OK(c, gin.H{"unread": count})
}

func (h *ChatHandler) SearchMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	messages, err := h.chatService.SearchMessages(
		c.Param("id"),
		userID,
		c.Query("q"),
		queryInt(c, "limit", 50),
	)
	if err != nil {
		mapChatError(c, err, "search messages failed")
		return
	}
	response.OK(c, messages)
}

// StreamEvents subscribes the caller to a session and streams fanout events
// over SSE until the connection drops.
func (h *ChatHandler) StreamEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sub, err := h.chatService.Subscribe(c.Param("id"), userID)
	if err != nil {
		mapChatError(c, err, "subscribe failed")
		return
	}
	defer h.chatService.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			if _, writeErr := c.Writer.Write([]byte(": keepalive\n\n")); writeErr != nil {
				return
			}
			flusher.Flush()
		case event, open := <-sub.C:
			if !open {
				return
			}
			payload, marshalErr := json.Marshal(event)
			if marshalErr != nil {
				continue
			}
			if _, writeErr := c.Writer.Write([]byte("event: " + event.Type + "\ndata: " + string(payload) + "\n\n")); writeErr != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func mapChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidArgument):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrPermissionDenied):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidState):
		response.Error(c, http.StatusConflict, response.CodeSessionClosed, err.Error())
	case errors.Is(err, app.ErrUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "temporarily unavailable, retry later")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
