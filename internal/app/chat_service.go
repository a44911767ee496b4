package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"logichat/internal/attachment"
	"logichat/internal/fanout"
	"logichat/internal/model"
	"logichat/internal/repository"
)

// SessionStore is the session registry persistence contract.
type SessionStore interface {
	GetOrCreate(customerID, clientID, subject, serviceContext string) (*model.ChatSession, bool, error)
	GetByID(sessionID string) (*model.ChatSession, error)
	ListByParticipant(userID, role string, page, perPage int) ([]model.ChatSession, error)
	Close(sessionID, closedBy string, at time.Time) (*model.ChatSession, error)
}

// MessageStore is the message persistence contract.
type MessageStore interface {
	Append(msg *model.Message, refs []model.AttachmentRef) (*model.Message, error)
	ListBySessionID(sessionID string, page, perPage int) ([]model.Message, error)
	MarkRead(sessionID, readerID string, upTo time.Time) (int64, error)
	CountUnread(userID, role string) (int64, error)
	Search(sessionID, term string, limit int) ([]model.Message, error)
}

// EventPublisher pushes fanout events toward subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event fanout.Event) error
}

// UnreadCache caches unread counts; writers invalidate synchronously.
type UnreadCache interface {
	Get(ctx context.Context, userID string) (int64, bool, error)
	Set(ctx context.Context, userID string, count int64) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// AttachmentStager stages file uploads before a message is appended.
type AttachmentStager interface {
	Stage(ctx context.Context, up attachment.Upload) (model.AttachmentRef, error)
}

type ChatService struct {
	sessions        SessionStore
	messages        MessageStore
	publisher       EventPublisher
	unreadCache     UnreadCache
	stager          AttachmentStager
	hub             *fanout.Hub
	sessionPageSize int
	messagePageSize int

	sendLocks [64]sync.Mutex
}

func NewChatService(
	sessions SessionStore,
	messages MessageStore,
	publisher EventPublisher,
	unreadCache UnreadCache,
	stager AttachmentStager,
	hub *fanout.Hub,
	sessionPageSize, messagePageSize int,
) *ChatService {
	if sessionPageSize <= 0 {
		sessionPageSize = 50
	}
	if messagePageSize <= 0 {
		messagePageSize = 100
	}
	return &ChatService{
		sessions:        sessions,
		messages:        messages,
		publisher:       publisher,
		unreadCache:     unreadCache,
		stager:          stager,
		hub:             hub,
		sessionPageSize: sessionPageSize,
		messagePageSize: messagePageSize,
	}
}

type CreateSessionInput struct {
	CustomerID     string
	ClientID       string
	Subject        string
	ServiceContext string
}

type SendMessageInput struct {
	SessionID string
	SenderID  string
	Content   string
	ClientKey string
	Uploads   []attachment.Upload
}

// CreateOrGetSession resolves the single session for the participant pair,
// creating it when absent. An existing session is returned as stored: the
// requested subject and context do not overwrite it.
func (s *ChatService) CreateOrGetSession(input CreateSessionInput) (*model.ChatSession, error) {
	customerID := strings.TrimSpace(input.CustomerID)
	clientID := strings.TrimSpace(input.ClientID)
	if customerID == "" || clientID == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrInvalidArgument)
	}
	if customerID == clientID {
		return nil, fmt.Errorf("%w: participants must be distinct", ErrInvalidArgument)
	}

	serviceContext := strings.TrimSpace(input.ServiceContext)
	if !model.ValidServiceContext(serviceContext) {
		return nil, fmt.Errorf("%w: unknown service context %q", ErrInvalidArgument, input.ServiceContext)
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = model.DefaultSessionSubject
	}

	session, _, err := s.sessions.GetOrCreate(customerID, clientID, subject, serviceContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID, role string, page, perPage int) ([]model.ChatSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	page, perPage = clampPage(page, perPage, s.sessionPageSize)

	sessions, err := s.sessions.ListByParticipant(userID, role, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return sessions, nil
}

// CloseSession is idempotent: closing an already-closed session returns the
// stored state from the first close without error.
func (s *ChatService) CloseSession(ctx context.Context, sessionID, userID string) (*model.ChatSession, error) {
	session, err := s.requireParticipant(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusClosed {
		return session, nil
	}

	closed, err := s.sessions.Close(sessionID, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if closed == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	s.publish(ctx, fanout.Event{
		Type:       fanout.EventSessionUpdated,
		SessionID:  closed.ID,
		OccurredAt: time.Now(),
		Session:    closed,
	})
	return closed, nil
}

// SendMessage stages every attachment, then appends the message and fans it
// out. Any staging failure aborts before the append, so a partial upload
// never produces a message row or dangling attachment references.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*model.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Uploads) == 0 {
		return nil, fmt.Errorf("%w: message needs content or an attachment", ErrInvalidArgument)
	}

	session, err := s.requireParticipant(input.SessionID, input.SenderID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusClosed {
		return nil, fmt.Errorf("%w: session %s", ErrInvalidState, session.ID)
	}

	refs := make([]model.AttachmentRef, 0, len(input.Uploads))
	for _, up := range input.Uploads {
		ref, stageErr := s.stager.Stage(ctx, up)
		if stageErr != nil {
			if attachment.IsRejected(stageErr) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, stageErr)
			}
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, stageErr)
		}
		refs = append(refs, ref)
	}

	kind := model.MessageKindText
	if len(refs) > 0 {
		kind = model.MessageKindFile
	}

	msg := &model.Message{
		SessionID: session.ID,
		SenderID:  input.SenderID,
		Content:   content,
		Kind:      kind,
	}
	if key := strings.TrimSpace(input.ClientKey); key != "" {
		msg.ClientKey = &key
	}

	// Append and publish run under a per-session lock so events reach the
	// broker in created_at order. The row lock inside Append orders the rows
	// themselves but not the publishes that follow the commit.
	lock := s.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	created, err := s.messages.Append(msg, refs)
	if err != nil {
		if errors.Is(err, repository.ErrSessionClosed) {
			return nil, fmt.Errorf("%w: session %s", ErrInvalidState, session.ID)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if s.unreadCache != nil {
		_ = s.unreadCache.Invalidate(ctx, session.OtherParticipant(input.SenderID))
	}

	s.publish(ctx, fanout.Event{
		Type:       fanout.EventMessageCreated,
		SessionID:  session.ID,
		OccurredAt: created.CreatedAt,
		Message:    created,
	})
	return created, nil
}

func (s *ChatService) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.sendLocks[h.Sum32()%uint32(len(s.sendLocks))]
}

func (s *ChatService) ListMessages(sessionID, requesterID string, page, perPage int) ([]model.Message, error) {
	if _, err := s.requireParticipant(sessionID, requesterID); err != nil {
		return nil, err
	}
	page, perPage = clampPage(page, perPage, s.messagePageSize)

	messages, err := s.messages.ListBySessionID(sessionID, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return messages, nil
}

// MarkRead flips every unread message addressed to readerID that existed
// when the call started. Messages appended concurrently stay unread and are
// picked up by the next call.
func (s *ChatService) MarkRead(ctx context.Context, sessionID, readerID string) (int64, error) {
	if _, err := s.requireParticipant(sessionID, readerID); err != nil {
		return 0, err
	}

	count, err := s.messages.MarkRead(sessionID, readerID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if count > 0 && s.unreadCache != nil {
		_ = s.unreadCache.Invalidate(ctx, readerID)
	}
	return count, nil
}

func (s *ChatService) UnreadCount(ctx context.Context, userID, role string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	if s.unreadCache != nil {
		if count, hit, err := s.unreadCache.Get(ctx, userID); err == nil && hit {
			return count, nil
		}
	}

	count, err := s.messages.CountUnread(userID, role)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if s.unreadCache != nil {
		_ = s.unreadCache.Set(ctx, userID, count)
	}
	return count, nil
}

func (s *ChatService) SearchMessages(sessionID, requesterID, term string, limit int) ([]model.Message, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrInvalidArgument)
	}
	if _, err := s.requireParticipant(sessionID, requesterID); err != nil {
		return nil, err
	}

	messages, err := s.messages.Search(sessionID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return messages, nil
}

// Subscribe registers a participant for realtime events on a session. The
// returned handle must be released with Unsubscribe.
func (s *ChatService) Subscribe(sessionID, userID string) (*fanout.Subscription, error) {
	if _, err := s.requireParticipant(sessionID, userID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(sessionID, userID), nil
}

func (s *ChatService) Unsubscribe(sub *fanout.Subscription) {
	s.hub.Unsubscribe(sub)
}

func (s *ChatService) requireParticipant(sessionID, userID string) (*model.ChatSession, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: session id and user id are required", ErrInvalidArgument)
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if !session.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: user %s is not a participant of session %s", ErrPermissionDenied, userID, sessionID)
	}
	return session, nil
}

// publish is best effort after the write has committed; a broker outage
// must not fail an already-persisted send. Clients reconcile by re-listing.
func (s *ChatService) publish(ctx context.Context, event fanout.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("publish %s event for session %s failed: %v", event.Type, event.SessionID, err)
	}
}

func clampPage(page, perPage, max int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > max {
		perPage = max
	}
	return page, perPage
}
