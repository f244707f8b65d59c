package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/auth"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/middleware"
)

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

// actor returns the authenticated user id, answering 401 when the request
// carries none.
func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "Authentication required"})
		return "", false
	}
	return uc.UserID, true
}

func (h *HTTPHandler) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		h.methodNotAllowed(w)
		return false
	}
	return true
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter) {
	h.writeError(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed"})
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, errorBody{Code: errors.ErrCodeInvalidInput, Message: "Request body too large"})
			return false
		}
		h.writeError(w, http.StatusBadRequest, errorBody{Code: errors.ErrCodeInvalidInput, Message: "Invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes a coded error. Internal causes are logged and never
// echoed to the client.
func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: errors.ErrCodeInternal, Message: "internal error"}
	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Code != errors.ErrCodeInternal {
		body = errorBody{Code: appErr.Code, Message: appErr.Message, Field: appErr.Field}
	}

	status := errors.HTTPStatus(err)
	event := h.log.Info()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Request failed")

	h.writeError(w, status, body)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, body errorBody) {
	h.respondJSON(w, status, map[string]errorBody{"error": body})
}
