package tokenapi

import (
	"encoding/json"
	"net/http"

	"github.com/d3v3l0/waiter/pkg/registry"
)

// errorBody is the single JSON shape every error response renders,
// regardless of which pipeline stage produced it.
type errorBody struct {
	Error string `json:"error"`
	Token string `json:"token,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// statusFor maps a registry error Kind to the HTTP status it renders
// as. This is the single translator: every handler funnels its errors
// through writeError rather than picking a status code itself.
func statusFor(err error) int {
	re, ok := err.(*registry.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch re.Kind {
	case registry.KindValidation:
		return http.StatusBadRequest
	case registry.KindAuthorization, registry.KindQuota:
		return http.StatusForbidden
	case registry.KindNotFound:
		return http.StatusNotFound
	case registry.KindPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if re, ok := err.(*registry.Error); ok {
		body.Token = re.Token
		body.Owner = re.Owner
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
