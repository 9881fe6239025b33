package allocation

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes retail allocation over JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the allocation API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products/{productID}", h.allocatable)
	r.Post("/", h.allocate)
	r.Post("/release", h.deallocate)
	return r
}

func (h *Handler) allocatable(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	stock, err := h.svc.Allocatable(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"productId": productID, "stock": stock})
}

type allocateRequest struct {
	ItemID   int64  `json:"itemId" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	OrderRef string `json:"orderRef" validate:"required"`
	ActorID  int64  `json:"actorId" validate:"required"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.Allocate(r.Context(), req.ItemID, req.Quantity, req.OrderRef, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deallocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.Deallocate(r.Context(), req.ItemID, req.Quantity, req.OrderRef, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return shared.Errorf(shared.ErrInvalidInput, "invalid request body")
	}
	if err := h.validate.Struct(target); err != nil {
		return shared.Errorf(shared.ErrInvalidInput, "validation failed: %v", err)
	}
	return nil
}
