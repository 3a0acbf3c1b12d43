package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/larderhq/larder/internal/platform/httpx"
	"github.com/larderhq/larder/internal/shared"
)

// Handler exposes the inventory REST surface: items, adjustments, movements,
// and the read-only ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enricher *Enricher
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, enricher *Enricher) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		enricher: enricher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers all inventory routes. The caller is expected to have
// authentication middleware above this subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.handleCreateItem)
		r.Get("/", h.handleListItems)
		r.Get("/{id}", h.handleGetItem)
		r.Put("/{id}", h.handleUpdateItem)
		r.Delete("/{id}", h.handleDeleteItem)
	})
	r.Route("/adjustments", func(r chi.Router) {
		r.Post("/", h.handleCreateAdjustment)
		r.Get("/", h.handleListAdjustments)
		r.Get("/{id}", h.handleGetAdjustment)
		r.Put("/{id}", h.handleUpdateAdjustment)
		r.Delete("/{id}", h.handleVoidAdjustment)
	})
	r.Route("/movements", func(r chi.Router) {
		r.Post("/", h.handleCreateMovement)
		r.Get("/", h.handleListMovements)
		r.Get("/{id}", h.handleGetMovement)
	})
	r.Route("/logs", func(r chi.Router) {
		r.Get("/", h.handleListLogs)
		r.Get("/{id}", h.handleGetLog)
	})
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.FieldProblem(w, httpx.ValidationFields(err))
		return false
	}
	return true
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), Item{
		Name:         req.Name,
		Unit:         req.Unit,
		Kind:         req.Kind,
		CurrentStock: req.CurrentStock,
		MinimumStock: req.MinimumStock,
		CostPerUnit:  req.CostPerUnit,
		Locked:       req.Locked,
		Category:     req.Category,
		Supplier:     req.Supplier,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	f := httpx.ParseListFilters(r)
	items, total, err := h.service.ListItems(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, items, shared.NewPagination(f.Page, f.Limit, total))
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, ItemPatch{
		Name:         req.Name,
		Unit:         req.Unit,
		Kind:         req.Kind,
		MinimumStock: req.MinimumStock,
		CostPerUnit:  req.CostPerUnit,
		Locked:       req.Locked,
		Category:     req.Category,
		Supplier:     req.Supplier,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

type adjustmentResponse struct {
	Adjustment Adjustment `json:"adjustment"`
	LogEntry   LogEntry   `json:"logEntry"`
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req createAdjustmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	adj, entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:         req.ItemID,
		Type:           req.Type,
		Change:         req.Change,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		ActorID:        principal.ID,
		IdempotencyKey: httpx.IdempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustmentResponse{Adjustment: adj, LogEntry: entry})
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	f := httpx.ParseListFilters(r)
	itemID := httpx.QueryInt64(r, "itemId")
	adjs, total, err := h.service.ListAdjustments(r.Context(), itemID, f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, adjs, shared.NewPagination(f.Page, f.Limit, total))
}

func (h *Handler) handleGetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleUpdateAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateAdjustmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	adj, err := h.service.UpdateAdjustmentNotes(r.Context(), id, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleVoidAdjustment(w http.ResponseWriter, r *http.Request) {
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
	entry, err := h.service.VoidAdjustment(r.Context(), id, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":  "adjustment voided",
		"logEntry": entry,
	})
}

func (h *Handler) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req createMovementRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	mv, err := h.service.PostMovement(r.Context(), MovementInput{
		ItemID:         req.ItemID,
		Type:           req.Type,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		Notes:          req.Notes,
		LocationFrom:   req.LocationFrom,
		LocationTo:     req.LocationTo,
		ActorID:        principal.ID,
		IdempotencyKey: httpx.IdempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	f := httpx.ParseListFilters(r)
	itemID := httpx.QueryInt64(r, "itemId")
	movementType := MovementType(r.URL.Query().Get("movementType"))
	movements, total, err := h.service.ListMovements(r.Context(), itemID, movementType, f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, movements, shared.NewPagination(f.Page, f.Limit, total))
}

func (h *Handler) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.GetMovement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mv)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	f := httpx.ParseListFilters(r)
	lf := LogFilter{
		ItemID: httpx.QueryInt64(r, "itemId"),
		Reason: LogReason(r.URL.Query().Get("reason")),
	}
	entries, total, err := h.service.ListLogs(r.Context(), lf, f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	enriched, err := h.enricher.Enrich(r.Context(), entries)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.List(w, enriched, shared.NewPagination(f.Page, f.Limit, total))
}

func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetLog(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.enricher.EnrichOne(r.Context(), entry))
}
