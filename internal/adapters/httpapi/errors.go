package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError emits the stable JSON error envelope used by every filter
// rejection, tagged with the pipeline request ID when one is present.
func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	resp := errorResponse{Error: errorDetail{Code: code, Message: message}}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
