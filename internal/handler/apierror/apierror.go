// Package apierror maps service errors onto HTTP responses.
package apierror

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/finbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/finbot/backend/internal/service/chat"
	"github.com/zhouzirui/finbot/backend/pkg/utils"
)

// Status 返回错误对应的HTTP状态码
func Status(err error) int {
	switch {
	case errors.Is(err, ai.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, chatservice.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrPersonaRequired),
		errors.Is(err, chatservice.ErrPersonaNotFound),
		errors.Is(err, chatservice.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回可以展示给客户端的错误描述
func Message(err error) string {
	switch {
	case errors.Is(err, ai.ErrConfiguration):
		return "generation service is not configured"
	case errors.Is(err, chatservice.ErrTransport):
		return chatservice.ApologyText
	case Status(err) == http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

// Respond 写入错误响应
func Respond(w http.ResponseWriter, err error) {
	utils.RespondError(w, Status(err), Message(err))
}
