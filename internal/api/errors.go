package api

import (
	"encoding/json"
	"net/http"

	"github.com/ytdlder/ytdlder/internal/errs"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr translates an error kind into its HTTP status. The response body
// carries the kind so clients can branch without parsing messages.
func writeErr(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, statusForKind(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func writeValidationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
		"kind":  string(errs.Validation),
	})
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.UpstreamFetch:
		return http.StatusBadGateway
	default:
		// processing, storage, internal
		return http.StatusInternalServerError
	}
}
