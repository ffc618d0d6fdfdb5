package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/handler/apierror"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	chatService "github.com/zhouzirui/finbot/backend/internal/service/chat"
	"github.com/zhouzirui/finbot/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logging.OrNop(logger),
	}
}

// TranscriptResponse 会话消息快照
type TranscriptResponse struct {
	SessionID string         `json:"sessionId"`
	Messages  []chat.Message `json:"messages"`
	Busy      bool           `json:"busy"`
}

// TurnResponse 非流式对话的结果
type TurnResponse struct {
	Message chat.Message `json:"message"`
	Error   string       `json:"error,omitempty"`
}

type personaRequest struct {
	PersonaID string `json:"personaId"`
}

type turnRequest struct {
	Text      string `json:"text"`
	WebSearch bool   `json:"webSearch"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Get("/messages", h.handleTranscript)
		r.Get("/archive", h.handleArchive)
		r.Put("/persona", h.handleSwitchPersona)
		r.Post("/turn", h.handleTurn)
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload personaRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 获取会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleCloseSession 关闭会话
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTranscript 返回会话消息快照
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	busy, err := h.chatSvc.Busy(sessionID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, TranscriptResponse{
		SessionID: sessionID,
		Messages:  messages,
		Busy:      busy,
	})
}

// handleArchive 返回归档的已完成消息，会话重启后仍可读取
func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.chatSvc.ArchivedTranscript(r.Context(), sessionID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, TranscriptResponse{
		SessionID: sessionID,
		Messages:  messages,
	})
}

// handleSwitchPersona 切换persona并重置会话
func (h *Handler) handleSwitchPersona(w http.ResponseWriter, r *http.Request) {
	var payload personaRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.SwitchPersona(r.Context(), chi.URLParam(r, "sessionID"), payload.PersonaID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleTurn 非流式发送一轮对话，返回最终的机器人消息
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload turnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.SendTurn(r.Context(), chi.URLParam(r, "sessionID"), payload.Text, payload.WebSearch)
	if errors.Is(err, chatService.ErrTransport) {
		h.logger.Warn("turn failed", zap.String("session", msg.SessionID), zap.Error(err))
		utils.RespondJSON(w, http.StatusBadGateway, TurnResponse{Message: msg, Error: apierror.Message(err)})
		return
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, TurnResponse{Message: msg})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if apierror.Status(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	apierror.Respond(w, err)
}
