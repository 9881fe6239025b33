package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kiln-ops/kiln/internal/platform/httpx"
	"github.com/kiln-ops/kiln/internal/shared"
)

// Handler exposes catalog masterdata over JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the catalog API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/materials", h.listMaterials)
	r.Post("/materials", h.createMaterial)
	r.Get("/materials/low-stock", h.lowStock)
	r.Get("/materials/{materialID}", h.getMaterial)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/bom", h.getBOM)
	r.Post("/products/{productID}/bom", h.setBOMItem)
	r.Post("/locations", h.createLocation)
	r.Get("/locations/{locationID}", h.getLocation)
	return r
}

type materialView struct {
	ID                int64  `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Unit              string `json:"unit"`
	ReorderPoint      int64  `json:"reorderPoint"`
	CurrentStockQty   int64  `json:"currentStockQty"`
	StandardCost      string `json:"standardCost"`
	DefaultLocationID *int64 `json:"defaultLocationId,omitempty"`
}

func toMaterialView(m RawMaterial) materialView {
	return materialView{
		ID:                m.ID,
		SKU:               m.SKU,
		Name:              m.Name,
		Unit:              m.Unit,
		ReorderPoint:      m.ReorderPoint,
		CurrentStockQty:   m.CurrentStockQty,
		StandardCost:      m.StandardCost.String(),
		DefaultLocationID: m.DefaultLocationID,
	}
}

type productView struct {
	ID               int64  `json:"id"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	Unit             string `json:"unit"`
	DefaultBatchSize int64  `json:"defaultBatchSize"`
}

type locationView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type bomItemView struct {
	ID              int64 `json:"id"`
	ProductID       int64 `json:"productId"`
	MaterialID      int64 `json:"materialId"`
	QuantityPerUnit int64 `json:"quantityPerUnit"`
	Version         int   `json:"version"`
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	materials, err := h.svc.ListMaterials(r.Context(), shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]materialView, 0, len(materials))
	for _, m := range materials {
		views = append(views, toMaterialView(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": views})
}

type createMaterialRequest struct {
	SKU               string `json:"sku" validate:"required"`
	Name              string `json:"name" validate:"required"`
	Unit              string `json:"unit" validate:"required"`
	ReorderPoint      int64  `json:"reorderPoint" validate:"gte=0"`
	StandardCost      string `json:"standardCost"`
	DefaultLocationID *int64 `json:"defaultLocationId"`
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cost := decimal.Zero
	if req.StandardCost != "" {
		parsed, err := decimal.NewFromString(req.StandardCost)
		if err != nil {
			httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "catalog: standard cost %q is not a number", req.StandardCost))
			return
		}
		cost = parsed
	}
	material, err := h.svc.CreateMaterial(r.Context(), RawMaterial{
		SKU:               req.SKU,
		Name:              req.Name,
		Unit:              req.Unit,
		ReorderPoint:      req.ReorderPoint,
		StandardCost:      cost,
		DefaultLocationID: req.DefaultLocationID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMaterialView(material))
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "materialID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.svc.GetMaterial(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialView(material))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	materials, err := h.svc.LowStockMaterials(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]materialView, 0, len(materials))
	for _, m := range materials {
		views = append(views, toMaterialView(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": views})
}

type createProductRequest struct {
	SKU              string `json:"sku" validate:"required"`
	Name             string `json:"name" validate:"required"`
	Unit             string `json:"unit" validate:"required"`
	DefaultBatchSize int64  `json:"defaultBatchSize" validate:"gte=0"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.svc.CreateProduct(r.Context(), Product{
		SKU:              req.SKU,
		Name:             req.Name,
		Unit:             req.Unit,
		DefaultBatchSize: req.DefaultBatchSize,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, productView{
		ID: product.ID, SKU: product.SKU, Name: product.Name,
		Unit: product.Unit, DefaultBatchSize: product.DefaultBatchSize,
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productView{
		ID: product.ID, SKU: product.SKU, Name: product.Name,
		Unit: product.Unit, DefaultBatchSize: product.DefaultBatchSize,
	})
}

func (h *Handler) getBOM(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.svc.ActiveBOM(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]bomItemView, 0, len(items))
	for _, b := range items {
		views = append(views, bomItemView{
			ID: b.ID, ProductID: b.ProductID, MaterialID: b.MaterialID,
			QuantityPerUnit: b.QuantityPerUnit, Version: b.Version,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": views})
}

type setBOMItemRequest struct {
	MaterialID      int64 `json:"materialId" validate:"required"`
	QuantityPerUnit int64 `json:"quantityPerUnit" validate:"required,gt=0"`
}

func (h *Handler) setBOMItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setBOMItemRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.svc.SetBOMItem(r.Context(), productID, req.MaterialID, req.QuantityPerUnit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bomItemView{
		ID: item.ID, ProductID: item.ProductID, MaterialID: item.MaterialID,
		QuantityPerUnit: item.QuantityPerUnit, Version: item.Version,
	})
}

type createLocationRequest struct {
	Name   string `json:"name" validate:"required"`
	Active *bool  `json:"active"`
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	location, err := h.svc.CreateLocation(r.Context(), Location{Name: req.Name, Active: active})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, locationView{ID: location.ID, Name: location.Name, Active: location.Active})
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "locationID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	location, err := h.svc.GetLocation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, locationView{ID: location.ID, Name: location.Name, Active: location.Active})
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

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Errorf(shared.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}
