package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fellowship/internal/adapters/http/middleware"
	"fellowship/internal/application/listutil"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/apperr"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var (
	errInvalidJSON  = apperr.Validation("request body is not valid JSON")
	errBodyTooLarge = apperr.Validation("request body is too large")
)

// statusFor maps error kinds to HTTP statuses.
var statusFor = map[error]int{
	apperr.ErrValidation:      http.StatusBadRequest,
	apperr.ErrUnauthenticated: http.StatusUnauthorized,
	apperr.ErrForbidden:       http.StatusForbidden,
	apperr.ErrNotFound:        http.StatusNotFound,
	apperr.ErrConflict:        http.StatusConflict,
	apperr.ErrLocked:          http.StatusLocked,
	apperr.ErrUnavailable:     http.StatusServiceUnavailable,
}

// writeError maps err onto its status. Unclassified errors are logged and
// answered with a generic 500 so internals never leak.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.Kind(err)
	status, ok := statusFor[kind]
	if !ok {
		s.log.Errorw("internal_error", "method", r.Method, "path", r.URL.Path, "error", err)
		middleware.RespondError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}
	if status == http.StatusServiceUnavailable {
		s.log.Warnw("store_unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	middleware.RespondError(w, status, kind.Error(), apperr.Message(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if isBodyTooLarge(err) {
			return errBodyTooLarge
		}
		return errInvalidJSON.WithCause(err)
	}
	return nil
}

// pageFrom reads limit and offset query parameters. Bad values fall back to
// the defaults.
func pageFrom(r *http.Request) projections.Page {
	p := listutil.ParsePageParams(r.URL.Query())
	return projections.Page{Limit: p.Limit, Offset: p.Offset}
}

// parseTime accepts RFC 3339 timestamps or YYYY-MM-DD dates (midnight UTC).
func parseTime(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation(field + " must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

// parseTimePtr is parseTime for optional JSON fields.
func parseTimePtr(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := parseTime(field, *v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

// isBodyTooLarge reports whether decoding stopped at maxBodyBytes.
func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
