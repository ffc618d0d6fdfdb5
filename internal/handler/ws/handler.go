package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/handler/apierror"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/middleware"
	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/finbot/backend/internal/service/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Envelope types.
const (
	TypeTurn      = "turn"
	TypePersona   = "persona"
	TypeEvent     = "event"
	TypeError     = "error"
	TypeConnected = "connected"
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// Inbound 客户端发送的消息
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TurnData 一轮对话请求
type TurnData struct {
	Text      string `json:"text"`
	WebSearch bool   `json:"webSearch"`
}

// PersonaData 切换persona请求
type PersonaData struct {
	PersonaID string `json:"personaId"`
}

// ConnectedData 连接建立时的会话快照
type ConnectedData struct {
	Session  chat.Session   `json:"session"`
	Messages []chat.Message `json:"messages"`
	Busy     bool           `json:"busy"`
}

// ErrorData 错误描述
type ErrorData struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Outbound 服务端推送的消息
type Outbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	logger    *zap.Logger

	mu sync.Mutex
}

func (c *conn) send(msgType string, data any) {
	msg := Outbound{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (c *conn) sendError(err error) {
	c.send(TypeError, ErrorData{Message: apierror.Message(err), Status: apierror.Status(err)})
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	c := &conn{ws: ws, sessionID: sessionID, logger: h.logger}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	var workers sync.WaitGroup
	defer workers.Wait()
	defer cancel()

	unsubscribe, err := h.chatSvc.Subscribe(sessionID, func(ev chatservice.Event) {
		c.send(TypeEvent, ev)
	})
	if err != nil {
		c.sendError(err)
		return
	}
	defer unsubscribe()

	messages, _ := h.chatSvc.LoadTranscript(ctx, sessionID)
	busy, _ := h.chatSvc.Busy(sessionID)
	c.send(TypeConnected, ConnectedData{Session: session, Messages: messages, Busy: busy})

	h.logger.Info("websocket connected", zap.String("session", sessionID))
	defer h.logger.Info("websocket closed", zap.String("session", sessionID))

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	workers.Add(1)
	go func() {
		defer workers.Done()
		h.pingLoop(ctx, ws)
	}()

	for {
		var msg Inbound
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case TypeTurn:
			var turn TurnData
			if err := json.Unmarshal(msg.Data, &turn); err != nil {
				c.send(TypeError, ErrorData{Message: "invalid turn payload", Status: http.StatusBadRequest})
				continue
			}
			workers.Add(1)
			go func() {
				defer workers.Done()
				h.runTurn(ctx, c, turn)
			}()
		case TypePersona:
			var data PersonaData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.send(TypeError, ErrorData{Message: "invalid persona payload", Status: http.StatusBadRequest})
				continue
			}
			if _, err := h.chatSvc.SwitchPersona(ctx, sessionID, data.PersonaID); err != nil {
				c.sendError(err)
			}
		default:
			c.send(TypeError, ErrorData{Message: "unsupported message type: " + msg.Type, Status: http.StatusBadRequest})
		}
	}
}

// runTurn streams one turn. Progress reaches the client through the subscription;
// only rejections and failures are reported here.
func (h *Handler) runTurn(ctx context.Context, c *conn, turn TurnData) {
	_, err := h.chatSvc.SendTurn(ctx, c.sessionID, turn.Text, turn.WebSearch)
	if err == nil {
		return
	}
	if errors.Is(err, chatservice.ErrTransport) {
		h.logger.Warn("websocket turn failed", zap.String("session", c.sessionID), zap.Error(err))
	}
	c.sendError(err)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
