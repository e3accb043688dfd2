package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"satdigital/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var (
		forbidden  *domain.ForbiddenError
		invalid    *domain.InvalidStateError
		notAllowed *domain.TransitionNotAllowedError
		locked     *domain.ConfigurationLockedError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &invalid), errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrJustificationRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &notAllowed), errors.Is(err, domain.ErrStaleState), errors.Is(err, domain.ErrDocumentVersionMismatch):
		return http.StatusConflict
	case errors.As(err, &locked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}
