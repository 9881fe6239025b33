package receiving

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes receiving over JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the receiving API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.receive)
	return r
}

type receiveRequest struct {
	PORef      string     `json:"poRef" validate:"required"`
	MaterialID int64      `json:"materialId" validate:"required"`
	Quantity   int64      `json:"quantity" validate:"required,gt=0"`
	UnitCost   string     `json:"unitCost"`
	LotNumber  string     `json:"lotNumber"`
	ExpiryDate *time.Time `json:"expiryDate"`
	LocationID *int64     `json:"locationId"`
	ActorID    int64      `json:"actorId" validate:"required"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "validation failed: %v", err))
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		parsed, err := decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "receiving: unit cost %q is not a number", req.UnitCost))
			return
		}
		unitCost = parsed
	}

	item, err := h.svc.ReceiveAgainstPO(r.Context(), ReceiveParams{
		PORef:      req.PORef,
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		UnitCost:   unitCost,
		LotNumber:  req.LotNumber,
		ExpiryDate: req.ExpiryDate,
		LocationID: req.LocationID,
		ActorID:    req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}
