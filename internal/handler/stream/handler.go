package stream

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/handler/apierror"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
	chatService "github.com/zhouzirui/finbot/backend/internal/service/chat"
	"github.com/zhouzirui/finbot/backend/pkg/utils"
)

// SSE event names.
const (
	EventStart   = "start"
	EventMessage = "message"
	EventEnd     = "end"
	EventError   = "error"
)

// Handler manages streaming chat turns via Server-Sent Events
type Handler struct {
	chatSvc  *chatService.Service
	personas persona.Store
	logger   *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, personas persona.Store, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		personas: personas,
		logger:   logging.OrNop(logger),
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string        `json:"event"`
	SessionID string        `json:"sessionId,omitempty"`
	PersonaID string        `json:"personaId,omitempty"`
	Content   string        `json:"content,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
	// Status is the HTTP status the error would have had before the stream opened.
	Status int `json:"status,omitempty"`
}

// RegisterRoutes registers the SSE endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleStream runs one turn and streams the bot message after every fragment.
// Validation failures are answered with plain JSON before the stream opens.
// The busy check is not atomic with the turn: a turn that starts in between is
// reported as an error event with status 409 on the open stream.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()
	userMessage := query.Get("message")

	webSearch := false
	if raw := query.Get("webSearch"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "webSearch must be a boolean")
			return
		}
		webSearch = parsed
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	if busy, _ := h.chatSvc.Busy(sessionID); busy {
		apierror.Respond(w, chatService.ErrTurnInFlight)
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	content := session.PersonaID
	if p, ok := h.personas.FindByID(session.PersonaID); ok {
		content = p.Name
	}
	h.send(sse, StreamResponse{
		Event:     EventStart,
		SessionID: sessionID,
		PersonaID: session.PersonaID,
		Content:   content,
	})

	msg, err := h.chatSvc.StreamTurn(r.Context(), sessionID, userMessage, webSearch, func(ev chatService.Event) {
		if ev.Kind != chatService.EventUpdated || ev.Message == nil || ev.Message.Sender != chat.SenderBot {
			return
		}
		h.send(sse, StreamResponse{
			Event:     EventMessage,
			SessionID: sessionID,
			Message:   ev.Message,
		})
	})

	switch {
	case errors.Is(err, chatService.ErrTransport):
		h.logger.Warn("stream turn failed", zap.String("session", sessionID), zap.Error(err))
		h.send(sse, errorEvent(sessionID, &msg, err))
	case err != nil:
		h.send(sse, errorEvent(sessionID, nil, err))
	default:
		h.send(sse, StreamResponse{
			Event:     EventEnd,
			SessionID: sessionID,
			Message:   &msg,
			Finished:  true,
		})
		h.logger.Debug("stream completed",
			zap.String("session", sessionID),
			zap.String("persona", session.PersonaID),
		)
	}
}

func errorEvent(sessionID string, msg *chat.Message, err error) StreamResponse {
	return StreamResponse{
		Event:     EventError,
		SessionID: sessionID,
		Message:   msg,
		Error:     apierror.Message(err),
		Status:    apierror.Status(err),
	}
}

// send logs write failures; a disconnected client also cancels the turn through the request context.
func (h *Handler) send(sse *utils.SSEWriter, resp StreamResponse) {
	if err := sse.Send(resp); err != nil {
		h.logger.Debug("sse write failed", zap.String("event", resp.Event), zap.Error(err))
	}
}
