package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/export"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/store"
	"github.com/foxzi/flowry/internal/textgen"
)

// apiError is an error with a fixed status and client message
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return e.msg
}

func newError(status int, msg string) error {
	return &apiError{status: status, msg: msg}
}

func unprocessable(format string, args ...any) error {
	return &apiError{status: http.StatusUnprocessableEntity, msg: fmt.Sprintf(format, args...)}
}

var (
	errCampaignNotFound = newError(http.StatusNotFound, "Campaign not found")
	errTemplateNotFound = newError(http.StatusNotFound, "Template not found")
	errNodeNotFound     = newError(http.StatusNotFound, "Node not found")
	errJobNotFound      = newError(http.StatusNotFound, "Job not found")
	errJobForbidden     = newError(http.StatusForbidden, "Unauthorized")
	errInvalidBody      = newError(http.StatusBadRequest, "Invalid request body")
)

// writeError maps err to a status and writes the JSON error body.
// Validation maps to 422, missing resources to 404, version conflicts to 409,
// everything unrecognised to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apiError
	var verrs campaign.ValidationErrors

	switch {
	case errors.As(err, &ae):
		sendError(w, ae.status, ae.msg)
	case errors.As(err, &verrs):
		sendJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: verrs})
	case errors.Is(err, store.ErrDuplicateName):
		sendJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: []string{"name has already been taken"}})
	case errors.Is(err, flow.ErrInvalidNode),
		errors.Is(err, flow.ErrInvalidEdge),
		errors.Is(err, flow.ErrDuplicateNode),
		errors.Is(err, flow.ErrDuplicateEdge),
		errors.Is(err, campaign.ErrInvalidStatus),
		errors.Is(err, textgen.ErrUnknownIntent):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, export.ErrUnsupportedFormat):
		sendError(w, http.StatusUnprocessableEntity, "Unsupported export format")
	case errors.Is(err, flow.ErrNodeNotFound):
		sendError(w, http.StatusNotFound, "Node not found")
	case errors.Is(err, flow.ErrEdgeNotFound):
		sendError(w, http.StatusNotFound, "Edge not found")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		sendError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrVersionConflict):
		sendError(w, http.StatusConflict, store.ErrVersionConflict.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a JSON body capped at the configured size.
// An empty body leaves v untouched.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	err := json.NewDecoder(body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newError(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	return errInvalidBody
}

// expectedVersion reads the structure version guard from the body or the If-Match header.
// Without either the write is unconditional.
func expectedVersion(r *http.Request, bodyVersion *int64) (int64, error) {
	if bodyVersion != nil {
		return *bodyVersion, nil
	}

	tag := strings.TrimSpace(r.Header.Get("If-Match"))
	if tag == "" || tag == "*" {
		return store.AnyVersion, nil
	}
	tag = strings.TrimPrefix(tag, "W/")
	tag = strings.Trim(tag, `"`)

	v, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || v < 0 {
		return 0, unprocessable("invalid If-Match version %q", tag)
	}
	return v, nil
}

func setETag(w http.ResponseWriter, c *campaign.Campaign) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(c.StructureVersion, 10)))
}
