package inventory

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes inventory operations over JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the inventory API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/items", h.listItems)
	r.Get("/items/{itemID}", h.itemDetail)
	r.Post("/items/{itemID}/status", h.setStatus)
	r.Get("/activity", h.recentActivity)
	r.Post("/adjustments", h.applyAdjustment)
	r.Post("/consumption", h.consume)
	r.Post("/moves", h.move)
	r.Post("/reservations", h.reserve)
	r.Post("/releases", h.release)
	r.Get("/materials/{materialID}/availability", h.materialAvailability)
	r.Get("/products/{productID}/availability", h.productAvailability)
	return r
}

type itemView struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	MaterialID *int64     `json:"materialId,omitempty"`
	ProductID  *int64     `json:"productId,omitempty"`
	BatchID    *int64     `json:"batchId,omitempty"`
	LocationID int64      `json:"locationId"`
	OnHand     int64      `json:"onHand"`
	Reserved   int64      `json:"reserved"`
	Available  int64      `json:"available"`
	Unit       string     `json:"unit"`
	Status     string     `json:"status"`
	LotNumber  string     `json:"lotNumber,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	UnitCost   string     `json:"unitCost"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func viewItem(item Item) itemView {
	return itemView{
		ID:         item.ID,
		Kind:       string(item.Kind),
		MaterialID: item.MaterialID,
		ProductID:  item.ProductID,
		BatchID:    item.BatchID,
		LocationID: item.LocationID,
		OnHand:     item.OnHand,
		Reserved:   item.Reserved,
		Available:  item.Available(),
		Unit:       item.Unit,
		Status:     string(item.Status),
		LotNumber:  item.LotNumber,
		ExpiryDate: item.ExpiryDate,
		UnitCost:   item.UnitCost.String(),
		Source:     string(item.Source),
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func viewItems(items []Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, viewItem(item))
	}
	return views
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{
		Kind:       ItemKind(q.Get("kind")),
		MaterialID: parseID(q.Get("materialId")),
		ProductID:  parseID(q.Get("productId")),
		BatchID:    parseID(q.Get("batchId")),
		LocationID: parseID(q.Get("locationId")),
		Status:     ItemStatus(q.Get("status")),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	pagination := shared.NewPagination(page, perPage, 0)

	items, total, err := h.svc.ListItems(r.Context(), filter, pagination)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pagination = shared.NewPagination(pagination.Page, pagination.PerPage, total)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": viewItems(items),
		"pagination": map[string]int{
			"page":       pagination.Page,
			"perPage":    pagination.PerPage,
			"total":      pagination.Total,
			"totalPages": pagination.TotalPages,
		},
	})
}

func (h *Handler) itemDetail(w http.ResponseWriter, r *http.Request) {
	itemID := parseID(chi.URLParam(r, "itemID"))
	detail, err := h.svc.ItemDetail(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item":        viewItem(detail.Item),
		"adjustments": detail.Adjustments,
		"movements":   detail.Movements,
	})
}

func (h *Handler) recentActivity(w http.ResponseWriter, r *http.Request) {
	adjustments, err := h.svc.RecentActivity(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

type adjustmentRequest struct {
	ItemID      int64  `json:"itemId" validate:"required"`
	Delta       int64  `json:"delta" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	RelatedType string `json:"relatedType"`
	RelatedID   int64  `json:"relatedId"`
	ActorID     int64  `json:"actorId" validate:"required"`
}

func (h *Handler) applyAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, newOnHand, err := h.svc.ApplyAdjustment(r.Context(), ApplyAdjustmentParams{
		ItemID:      req.ItemID,
		Delta:       req.Delta,
		Type:        AdjustmentType(req.Type),
		Reason:      req.Reason,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
		ActorID:     req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"adjustment": adj, "newOnHand": newOnHand})
}

type consumeRequest struct {
	MaterialID int64  `json:"materialId" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Strict     bool   `json:"strict"`
	Reason     string `json:"reason" validate:"required"`
	Reference  string `json:"reference"`
	ActorID    int64  `json:"actorId" validate:"required"`
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.svc.Consume(r.Context(), ConsumeParams{
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		Strict:     req.Strict,
		Reason:     req.Reason,
		Reference:  req.Reference,
		ActorID:    req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type moveRequest struct {
	ItemID       int64  `json:"itemId" validate:"required"`
	ToLocationID int64  `json:"toLocationId" validate:"required"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"required"`
	ActorID      int64  `json:"actorId" validate:"required"`
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	dest, err := h.svc.Move(r.Context(), MoveParams{
		ItemID:       req.ItemID,
		ToLocationID: req.ToLocationID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		ActorID:      req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewItem(dest))
}

type reservationRequest struct {
	ItemID    int64  `json:"itemId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reference string `json:"reference"`
	ActorID   int64  `json:"actorId" validate:"required"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.Reserve(r.Context(), req.ItemID, req.Quantity, req.Reference, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewItem(item))
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.Release(r.Context(), req.ItemID, req.Quantity, req.Reference, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewItem(item))
}

type statusRequest struct {
	Status  string `json:"status" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actorId" validate:"required"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	itemID := parseID(chi.URLParam(r, "itemID"))
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.SetItemStatus(r.Context(), itemID, ItemStatus(req.Status), req.Reason, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewItem(item))
}

func (h *Handler) materialAvailability(w http.ResponseWriter, r *http.Request) {
	materialID := parseID(chi.URLParam(r, "materialID"))
	available, err := h.svc.MaterialAvailability(r.Context(), materialID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"materialId": materialID, "available": available})
}

func (h *Handler) productAvailability(w http.ResponseWriter, r *http.Request) {
	productID := parseID(chi.URLParam(r, "productID"))
	items, err := h.svc.ProductAvailability(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var total int64
	for _, item := range items {
		total += item.Available()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"productId": productID, "available": total, "items": viewItems(items)})
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

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
