package procurement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/larderhq/larder/internal/inventory"
	"github.com/larderhq/larder/internal/platform/httpx"
	"github.com/larderhq/larder/internal/shared"
)

// Handler exposes the purchase-order REST surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers purchase-order routes under the caller's auth
// middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/receive", h.handleReceive)
	r.Post("/{id}/cancel", h.handleCancel)
}

type lineRequest struct {
	ItemID   int64   `json:"itemId" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost float64 `json:"unitCost" validate:"gte=0"`
}

type orderRequest struct {
	SupplierID   int64         `json:"supplierId" validate:"required,gt=0"`
	Notes        string        `json:"notes" validate:"max=500"`
	OrderDate    time.Time     `json:"orderDate" validate:"required"`
	ExpectedDate *time.Time    `json:"expectedDate"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveRequest struct {
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=64"`
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (OrderInput, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return OrderInput{}, false
	}
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return OrderInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.FieldProblem(w, httpx.ValidationFields(err))
		return OrderInput{}, false
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, LineInput{ItemID: ln.ItemID, Quantity: ln.Quantity, UnitCost: ln.UnitCost})
	}
	return OrderInput{
		SupplierID:   req.SupplierID,
		Notes:        req.Notes,
		OrderDate:    req.OrderDate,
		ExpectedDate: req.ExpectedDate,
		Lines:        lines,
		ActorID:      principal.ID,
	}, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	order, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f := httpx.ParseListFilters(r)
	lf := ListFilter{
		Status:     OrderStatus(r.URL.Query().Get("status")),
		SupplierID: httpx.QueryInt64(r, "supplierId"),
	}
	orders, total, err := h.service.List(r.Context(), lf, f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, orders, shared.NewPagination(f.Page, f.Limit, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	order, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "purchase order deleted"})
}

type receiveResponse struct {
	Order      Order                `json:"order"`
	LogEntries []inventory.LogEntry `json:"logEntries"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	order, entries, err := h.service.Receive(r.Context(), id, principal.ID, httpx.IdempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiveResponse{Order: order, LogEntries: entries})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), id, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
