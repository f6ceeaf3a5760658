package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

type errResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, lti.ErrNotFound) && lti.KindOf(err) == "" {
		return http.StatusNotFound
	}
	switch lti.KindOf(err) {
	case lti.KindLogin, lti.KindMessageValidation:
		return http.StatusBadRequest
	case lti.KindNoStateFound, lti.KindTokenFormat:
		return http.StatusUnauthorized
	case lti.KindRegistration:
		return http.StatusForbidden
	case lti.KindPublicKey:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ...}. Internal failures do not leak
// their cause.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errResp{Error: http.StatusText(status)}
	var le *lti.Error
	if errors.As(err, &le) {
		resp.Kind = string(le.Kind)
		if status != http.StatusInternalServerError {
			resp.Error = le.Message
		}
	} else if status == http.StatusNotFound {
		resp.Error = "launch not found"
	}
	writeJSON(w, status, resp)
}
