package handler

import (
	"net/http"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/workflow"
	"github.com/go-chi/chi/v5"
)

// StatusHandler exposes the order status catalog so frontends can render the
// lifecycle without hardcoding it.
type StatusHandler struct{}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{}
}

// RegisterRoutes registers status endpoints.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type statusResponse struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	SortOrder int32  `json:"sort_order"`
	Terminal  bool   `json:"terminal"`
}

// List handles GET /order-statuses, sorted by display order.
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	all := workflow.All()
	resp := make([]statusResponse, len(all))
	for i, s := range all {
		resp[i] = statusResponse{
			ID:        s.ID,
			Name:      s.Name,
			Code:      s.Code,
			SortOrder: s.SortOrder,
			Terminal:  s.IsTerminal(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": resp})
}
