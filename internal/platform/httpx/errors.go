package httpx

import (
	"errors"
	"net/http"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		integrity *shared.IntegrityError
		state     *shared.StateConflictError
	)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &state):
		Problem(w, r, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &integrity):
		Problem(w, r, http.StatusUnprocessableEntity, "Integrity Violation", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, r, http.StatusInternalServerError, "Internal Error", "")
	}
}
