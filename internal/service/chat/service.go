package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
	"github.com/zhouzirui/finbot/backend/internal/store"
)

// ConversationFactory opens persona-bound conversation handles. *ai.Service implements it.
type ConversationFactory interface {
	NewConversation(p persona.Persona) (*ai.Conversation, error)
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// Archive receives frozen messages. Defaults to an in-memory store.
	Archive store.Repository
	// TurnTimeout bounds a turn whose context has no deadline. Zero disables it.
	TurnTimeout time.Duration
	Logger      *zap.Logger
}

type session struct {
	transcript *Transcript

	mu   sync.RWMutex
	info chat.Session
	conv *ai.Conversation
}

func (s *session) snapshot() (chat.Session, *ai.Conversation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, s.conv
}

// Service runs chat turns: it feeds user text to the session's conversation
// and folds the streamed answer into the transcript.
type Service struct {
	personas    persona.Store
	factory     ConversationFactory
	archive     store.Repository
	turnTimeout time.Duration
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewService wires the chat service.
func NewService(personas persona.Store, factory ConversationFactory, opts Options) *Service {
	archive := opts.Archive
	if archive == nil {
		archive = store.NewMemory()
	}
	return &Service{
		personas:    personas,
		factory:     factory,
		archive:     archive,
		turnTimeout: opts.TurnTimeout,
		logger:      logging.OrNop(opts.Logger),
		sessions:    make(map[string]*session),
	}
}

// CreateSession opens a conversation for the persona and seeds its welcome message.
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	p, err := s.lookupPersona(personaID)
	if err != nil {
		return chat.Session{}, err
	}

	conv, err := s.factory.NewConversation(p)
	if err != nil {
		return chat.Session{}, fmt.Errorf("open conversation: %w", err)
	}

	info := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: p.ID,
		CreatedAt: time.Now().UTC(),
	}
	sess := &session{
		transcript: newTranscript(info.ID),
		info:       info,
		conv:       conv,
	}
	welcome := welcomeMessage(info.ID, p)
	sess.transcript.append(welcome)

	s.mu.Lock()
	s.sessions[info.ID] = sess
	s.mu.Unlock()

	s.archiveMessage(ctx, welcome)
	s.logger.Info("session created",
		zap.String("session", info.ID),
		zap.String("persona", p.ID),
	)
	return info, nil
}

// SwitchPersona replaces the session's conversation and transcript.
// Choosing the current persona changes nothing.
func (s *Service) SwitchPersona(ctx context.Context, sessionID, personaID string) (chat.Session, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	p, err := s.lookupPersona(personaID)
	if err != nil {
		return chat.Session{}, err
	}

	if !sess.transcript.tryBegin() {
		return chat.Session{}, ErrTurnInFlight
	}
	defer sess.transcript.end()

	info, _ := sess.snapshot()
	if info.PersonaID == p.ID {
		return info, nil
	}

	conv, err := s.factory.NewConversation(p)
	if err != nil {
		return chat.Session{}, fmt.Errorf("open conversation: %w", err)
	}

	if err := s.archive.DeleteSession(context.WithoutCancel(ctx), sessionID); err != nil {
		s.logger.Warn("failed to clear archived transcript",
			zap.String("session", sessionID),
			zap.Error(err),
		)
	}

	sess.mu.Lock()
	sess.info.PersonaID = p.ID
	sess.conv = conv
	info = sess.info
	sess.mu.Unlock()

	welcome := welcomeMessage(sessionID, p)
	sess.transcript.reset([]chat.Message{welcome})
	s.archiveMessage(ctx, welcome)

	s.logger.Info("persona switched",
		zap.String("session", sessionID),
		zap.String("persona", p.ID),
	)
	return info, nil
}

// SendTurn submits userText and streams the answer into the transcript.
// On a stream failure the returned message carries the apology and err is a *TransportError.
func (s *Service) SendTurn(ctx context.Context, sessionID, userText string, useWebSearch bool) (chat.Message, error) {
	return s.StreamTurn(ctx, sessionID, userText, useWebSearch, nil)
}

// StreamTurn is SendTurn with an observer that sees only this turn's mutations.
// onEvent runs on the calling goroutine; it may be nil.
func (s *Service) StreamTurn(ctx context.Context, sessionID, userText string, useWebSearch bool, onEvent Observer) (chat.Message, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return chat.Message{}, err
	}
	if strings.TrimSpace(userText) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if !sess.transcript.tryBegin() {
		return chat.Message{}, ErrTurnInFlight
	}
	defer sess.transcript.end()

	_, conv := sess.snapshot()

	userMsg := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    chat.SenderUser,
		Text:      userText,
		State:     chat.StateFrozen,
		CreatedAt: time.Now().UTC(),
	}
	emit(onEvent, sess.transcript.append(userMsg))
	s.archiveMessage(ctx, userMsg)

	bot := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    chat.SenderBot,
		State:     chat.StateStreaming,
		CreatedAt: time.Now().UTC(),
	}
	emit(onEvent, sess.transcript.append(bot))

	turnCtx := ctx
	if _, ok := ctx.Deadline(); !ok && s.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	acc := newAccumulator()
	var streamErr error
	for frag, err := range conv.Stream(turnCtx, userText, useWebSearch) {
		if err != nil {
			streamErr = err
			break
		}
		acc.add(frag)
		bot.Text = acc.Text()
		bot.Sources = acc.Sources()
		emit(onEvent, sess.transcript.update(bot))
	}

	if streamErr != nil {
		bot.Text = ApologyText
		bot.Sources = nil
		bot.State = chat.StateFailed
		emit(onEvent, sess.transcript.update(bot))
		s.archiveMessage(ctx, bot)

		s.logger.Warn("turn failed",
			zap.String("session", sessionID),
			zap.Bool("web_search", useWebSearch),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(streamErr),
		)
		return bot.Clone(), &TransportError{SessionID: sessionID, Err: streamErr}
	}

	bot.State = chat.StateFrozen
	emit(onEvent, sess.transcript.update(bot))
	s.archiveMessage(ctx, bot)

	s.logger.Info("turn completed",
		zap.String("session", sessionID),
		zap.Bool("web_search", useWebSearch),
		zap.Int("chars", len(bot.Text)),
		zap.Int("sources", len(bot.Sources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return bot.Clone(), nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	info, _ := sess.snapshot()
	return info, nil
}

// LoadTranscript returns a copy of the session's messages.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.transcript.Snapshot(), nil
}

// ArchivedTranscript returns the session's frozen messages from the archive.
// It also serves sessions that are no longer live, such as those from before a restart.
func (s *Service) ArchivedTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	messages, err := s.archive.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load archived transcript: %w", err)
	}
	if len(messages) == 0 {
		if _, err := s.session(sessionID); err != nil {
			return nil, err
		}
		return []chat.Message{}, nil
	}
	return messages, nil
}

// Busy reports whether a turn is streaming for the session.
func (s *Service) Busy(sessionID string) (bool, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return false, err
	}
	return sess.transcript.Busy(), nil
}

// Subscribe registers o for the session's transcript events.
func (s *Service) Subscribe(sessionID string, o Observer) (cancel func(), err error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.transcript.Subscribe(o), nil
}

// CloseSession forgets the session and its archived messages.
// A session with a turn in flight cannot be closed.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	// The busy flag is never released: handles obtained before the delete stay rejected.
	if !sess.transcript.tryBegin() {
		return ErrTurnInFlight
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if err := s.archive.DeleteSession(context.WithoutCancel(ctx), sessionID); err != nil {
		s.logger.Warn("failed to delete archived transcript",
			zap.String("session", sessionID),
			zap.Error(err),
		)
	}
	s.logger.Info("session closed", zap.String("session", sessionID))
	return nil
}

func (s *Service) session(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) lookupPersona(personaID string) (persona.Persona, error) {
	if personaID == "" {
		return persona.Persona{}, ErrPersonaRequired
	}
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return persona.Persona{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}
	return p, nil
}

// archiveMessage stores a frozen message. Failures are logged and otherwise ignored.
func (s *Service) archiveMessage(ctx context.Context, msg chat.Message) {
	if err := s.archive.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("failed to archive message",
			zap.String("session", msg.SessionID),
			zap.String("message", msg.ID),
			zap.Error(err),
		)
	}
}

func emit(o Observer, ev Event) {
	if o != nil {
		o(cloneEvent(ev))
	}
}

func welcomeMessage(sessionID string, p persona.Persona) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    chat.SenderBot,
		Text:      p.OpeningLine,
		State:     chat.StateFrozen,
		CreatedAt: time.Now().UTC(),
	}
}
