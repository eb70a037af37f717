package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/loom/pkg/jobs"
	"github.com/harun/loom/pkg/store"
	"github.com/harun/loom/pkg/workspace"
)

// Request bodies accepted by the API.
type createProjectRequest struct {
	Name string `json:"name"`
}

type createThreadRequest struct {
	Name string `json:"name"`
}

type postMessageRequest struct {
	Message string `json:"message"`
}

type writeFileRequest struct {
	Content string `json:"content"`
}

// submitAccepted is the 202 response to a message submission. The client
// polls /api/jobs/{id} with the returned id.
type submitAccepted struct {
	JobID string `json:"job_id"`
}

type fileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to an HTTP status and writes it
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrThreadNotFound),
		errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrProjectBusy),
		errors.Is(err, workspace.ErrThreadBusy):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, jobs.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, workspace.ErrInvalidName),
		errors.Is(err, workspace.ErrPathOutsideProject),
		errors.Is(err, workspace.ErrNotAFile),
		errors.Is(err, jobs.ErrInvalidSubmission),
		errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
