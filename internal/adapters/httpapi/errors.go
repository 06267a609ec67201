package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	ErrorKind string      `json:"error_kind"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// httpStatus maps an error kind to its status code. Kinds without a mapping
// surface as 500 with the kind in the body.
func httpStatus(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindInvalidInput:
		return http.StatusBadRequest
	case shared.KindResourceNotFound:
		return http.StatusNotFound
	case shared.KindConflictingUpdate:
		return http.StatusConflict
	case shared.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	body := errorBody{
		ErrorKind: string(kind),
		Message:   err.Error(),
	}

	var infeasible *routing.NoFeasibleSolutionError
	if errors.As(err, &infeasible) {
		body.Details = infeasible.Diagnostics
	}
	var invalid *shared.ValidationError
	if errors.As(err, &invalid) {
		body.Details = map[string]string{"field": invalid.Field}
	}

	respondJSON(w, httpStatus(kind), body)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON parses the request body into dst and rejects malformed JSON as
// invalid input.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.WrapDomainError(shared.KindInvalidInput, "malformed request body", err)
	}
	return nil
}
