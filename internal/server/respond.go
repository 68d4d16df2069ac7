package server

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error envelope. Message stays generic; Code is the
// stable machine-readable classification.
type errorBody struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message, reqID string) {
	writeJSON(w, status, errorBody{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}
