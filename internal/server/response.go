package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// ApiResponse is the envelope of every JSON API reply.
type ApiResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, ApiResponse{Status: http.StatusOK, Message: message, Data: data, Success: true})
}

// writeError maps err onto the error envelope. Internal causes are logged,
// never echoed to the caller.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := common.HTTPStatus(err)
	msg := common.UserMessage(err)
	log := common.LoggerFromContext(r.Context(), logger)
	if status >= http.StatusInternalServerError {
		log.Error("http.error", "code", common.Code(err), "error", err)
		msg = "Internal Server Error"
	} else {
		log.Warn("http.rejected", "status", status, "code", common.Code(err), "error", err)
	}
	writeJSON(w, status, ApiResponse{Status: status, Message: msg, Data: nil, Success: false})
}
