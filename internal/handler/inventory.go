package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// InventoryStore defines the database methods needed by inventory handlers.
type InventoryStore interface {
	ListAdjustmentsByProduct(ctx context.Context, arg database.ListAdjustmentsByProductParams) ([]database.InventoryAdjustment, error)
}

// InventoryHandler exposes the stock adjustment ledger. Writes to the ledger
// happen only through the order workflow.
type InventoryHandler struct {
	store InventoryStore
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(store InventoryStore) *InventoryHandler {
	return &InventoryHandler{store: store}
}

// RegisterAdminRoutes registers inventory endpoints.
func (h *InventoryHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/products/{id}/adjustments", h.ListByProduct)
}

type adjustmentResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Delta     int32     `json:"delta"`
	Reason    string    `json:"reason"`
	Note      *string   `json:"note"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ListByProduct handles GET /products/{id}/adjustments.
func (h *InventoryHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	adjustments, err := h.store.ListAdjustmentsByProduct(r.Context(), database.ListAdjustmentsByProductParams{
		ProductID: productID,
		Limit:     int32(limit),
		Offset:    int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list adjustments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]adjustmentResponse, len(adjustments))
	for i, a := range adjustments {
		resp[i] = adjustmentResponse{
			ID:        a.ID,
			ProductID: a.ProductID,
			Delta:     a.Delta,
			Reason:    a.Reason,
			CreatedBy: a.CreatedBy,
			CreatedAt: a.CreatedAt,
		}
		if a.Note.Valid {
			resp[i].Note = &a.Note.String
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"adjustments": resp,
		"limit":       limit,
		"offset":      offset,
	})
}
