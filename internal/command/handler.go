package command

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes command execution over JSON.
type Handler struct {
	executor *Executor
}

// NewHandler builds Handler.
func NewHandler(executor *Executor) *Handler {
	return &Handler{executor: executor}
}

// Routes mounts the command API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.execute)
	return r
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "invalid request body"))
		return
	}
	commandID := uuid.NewString()
	result, err := h.executor.Execute(r.Context(), cmd)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"commandId": commandID, "kind": cmd.Kind, "result": result})
}
