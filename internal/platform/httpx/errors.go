package httpx

import (
	"errors"
	"net/http"

	"github.com/kiln-ops/kiln/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrInvalidOperation):
		Problem(w, http.StatusConflict, "Invalid Operation", err.Error())
	case errors.Is(err, shared.ErrInsufficientInventory):
		Problem(w, http.StatusConflict, "Insufficient Inventory", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
