package production

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes production operations over JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the production API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.orderDetail)
	r.Post("/orders/{orderID}/start", h.startOrder)
	r.Post("/orders/{orderID}/block", h.blockOrder)
	r.Post("/orders/{orderID}/unblock", h.unblockOrder)
	r.Post("/orders/{orderID}/archive", h.archiveOrder)
	r.Post("/orders/{orderID}/dismiss", h.dismissOrder)
	r.Post("/orders/{orderID}/cancel", h.cancelOrder)
	r.Post("/orders/{orderID}/complete", h.completeOrder)
	r.Post("/orders/{orderID}/issue", h.issueMaterials)
	r.Post("/batches/{batchID}/start", h.startBatch)
	r.Post("/batches/{batchID}/complete", h.completeBatch)
	r.Post("/batches/{batchID}/scrap", h.recordScrap)
	r.Post("/batches/{batchID}/cancel", h.cancelBatch)
	r.Post("/batches/{batchID}/qc", h.setQCStatus)
	return r
}

type createOrderRequest struct {
	Reference      string `json:"reference" validate:"required"`
	ProductID      int64  `json:"productId" validate:"required"`
	QuantityToMake int64  `json:"quantityToMake" validate:"required,gt=0"`
	BatchSize      int64  `json:"batchSize" validate:"gte=0"`
	ActorID        int64  `json:"actorId" validate:"required"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), CreateOrderParams{
		Reference:      req.Reference,
		ProductID:      req.ProductID,
		QuantityToMake: req.QuantityToMake,
		BatchSize:      req.BatchSize,
		ActorID:        req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	includeHidden := q.Get("includeHidden") == "true"
	orders, err := h.svc.ListOrders(r.Context(), includeHidden, shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) orderDetail(w http.ResponseWriter, r *http.Request) {
	orderID := pathID(r, "orderID")
	order, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	batches, err := h.svc.OrderBatches(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	materials, err := h.svc.OrderMaterials(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "batches": batches, "materials": materials})
}

type actorRequest struct {
	ActorID int64 `json:"actorId" validate:"required"`
}

type reasonRequest struct {
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actorId" validate:"required"`
}

func (h *Handler) startOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Start(r.Context(), pathID(r, "orderID"), req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) blockOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Block(r.Context(), pathID(r, "orderID"), req.Reason, req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) unblockOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Unblock(r.Context(), pathID(r, "orderID"), req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) archiveOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Archive(r.Context(), pathID(r, "orderID"), req.Reason, req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) dismissOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Dismiss(r.Context(), pathID(r, "orderID"), req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Cancel(r.Context(), pathID(r, "orderID"), req.Reason, req.ActorID)
	h.respondOrder(w, order, err)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.svc.Complete(r.Context(), pathID(r, "orderID"), req.ActorID)
	h.respondOrder(w, order, err)
}

type issueMaterialsRequest struct {
	Materials []struct {
		MaterialID int64 `json:"materialId" validate:"required"`
		Quantity   int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"materials" validate:"required,min=1,dive"`
	ActorID int64 `json:"actorId" validate:"required"`
}

func (h *Handler) issueMaterials(w http.ResponseWriter, r *http.Request) {
	var req issueMaterialsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	requests := make([]IssueRequest, 0, len(req.Materials))
	for _, m := range req.Materials {
		requests = append(requests, IssueRequest{MaterialID: m.MaterialID, Quantity: m.Quantity})
	}
	results, err := h.svc.IssueMaterials(r.Context(), pathID(r, "orderID"), requests, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issued": results})
}

func (h *Handler) startBatch(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.svc.StartBatch(r.Context(), pathID(r, "batchID"), req.ActorID)
	h.respondBatch(w, batch, err)
}

type completeBatchRequest struct {
	ActualQty    int64      `json:"actualQty" validate:"gte=0"`
	LocationID   int64      `json:"locationId" validate:"required"`
	QCRequired   bool       `json:"qcRequired"`
	LossOverride *int64     `json:"lossOverride"`
	LotNumber    string     `json:"lotNumber"`
	ExpiryDate   *time.Time `json:"expiryDate"`
	ActorID      int64      `json:"actorId" validate:"required"`
}

func (h *Handler) completeBatch(w http.ResponseWriter, r *http.Request) {
	var req completeBatchRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.svc.CompleteBatch(r.Context(), CompleteBatchParams{
		BatchID:      pathID(r, "batchID"),
		ActualQty:    req.ActualQty,
		LocationID:   req.LocationID,
		QCRequired:   req.QCRequired,
		LossOverride: req.LossOverride,
		LotNumber:    req.LotNumber,
		ExpiryDate:   req.ExpiryDate,
		ActorID:      req.ActorID,
	})
	h.respondBatch(w, batch, err)
}

type scrapRequest struct {
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required"`
	ActorID  int64  `json:"actorId" validate:"required"`
}

func (h *Handler) recordScrap(w http.ResponseWriter, r *http.Request) {
	var req scrapRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.svc.RecordScrap(r.Context(), pathID(r, "batchID"), req.Quantity, req.Reason, req.ActorID)
	h.respondBatch(w, batch, err)
}

func (h *Handler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.svc.CancelBatch(r.Context(), pathID(r, "batchID"), req.Reason, req.ActorID)
	h.respondBatch(w, batch, err)
}

type qcRequest struct {
	Status  string `json:"status" validate:"required"`
	Notes   string `json:"notes"`
	ActorID int64  `json:"actorId" validate:"required"`
}

func (h *Handler) setQCStatus(w http.ResponseWriter, r *http.Request) {
	var req qcRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.svc.SetBatchQCStatus(r.Context(), pathID(r, "batchID"), QCStatus(req.Status), req.Notes, req.ActorID)
	h.respondBatch(w, batch, err)
}

func (h *Handler) respondOrder(w http.ResponseWriter, order Order, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondBatch(w http.ResponseWriter, batch Batch, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
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

func pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}
