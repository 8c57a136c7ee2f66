package utils

import (
	"encoding/json"
	"net/http"

	"github.com/echosoul/backend/internal/core/errx"
	logx "github.com/echosoul/backend/pkg/logger"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError maps err through errx so only the safe message reaches the client.
func RespondAppError(w http.ResponseWriter, err error) {
	status, message := errx.Resolve(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	RespondError(w, status, message)
}
