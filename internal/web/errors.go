package web

// errors.go turns service errors into JSON responses.
//
// Every error is logged server-side with the request id, then mapped through
// core.MapError so the client gets a coded, actionable message instead of
// the technical one.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with statusCode.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, statusCode, ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// fail responds with the status errorStatus picks for err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, errorStatus(err))
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	var verrs validator.ValidationErrors
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrUnknownImportType):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrJobTerminal):
		return http.StatusConflict
	case errors.Is(err, core.ErrAuditUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrUnsupportedFormat),
		errors.Is(err, core.ErrUnreadableFile),
		errors.Is(err, core.ErrNoDataRows),
		errors.Is(err, errBadRequest),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")
