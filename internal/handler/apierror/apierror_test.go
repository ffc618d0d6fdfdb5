package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/finbot/backend/internal/service/chat"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("open conversation: %w", ai.ErrConfiguration), http.StatusServiceUnavailable},
		{chatservice.ErrTurnInFlight, http.StatusConflict},
		{chatservice.ErrSessionNotFound, http.StatusNotFound},
		{chatservice.ErrPersonaRequired, http.StatusBadRequest},
		{fmt.Errorf("%w: x", chatservice.ErrPersonaNotFound), http.StatusBadRequest},
		{chatservice.ErrEmptyMessage, http.StatusBadRequest},
		{&chatservice.TransportError{SessionID: "s", Err: errors.New("eof")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestRespondHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, errors.New("db password leaked"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal error", body["error"])
}
