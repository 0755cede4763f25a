package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// CartStore defines the database methods needed by cart handlers.
type CartStore interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (database.Cart, error)
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]database.ListCartItemsRow, error)
	UpsertCartItem(ctx context.Context, arg database.UpsertCartItemParams) (database.CartItem, error)
	SetCartItemQuantity(ctx context.Context, arg database.SetCartItemQuantityParams) (database.CartItem, error)
	DeleteCartItem(ctx context.Context, arg database.DeleteCartItemParams) (uuid.UUID, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// CartHandler handles the current user's cart.
type CartHandler struct {
	store CartStore
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(store CartStore) *CartHandler {
	return &CartHandler{store: store}
}

// RegisterRoutes registers cart endpoints. All routes operate on the
// authenticated user's own cart.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/items", h.AddItem)
	r.Put("/items/{pid}", h.SetQuantity)
	r.Delete("/items/{pid}", h.RemoveItem)
	r.Delete("/", h.Clear)
}

// --- Request / Response types ---

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type cartItemResponse struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	UnitPrice    string    `json:"unit_price"`
	Quantity     int32     `json:"quantity"`
	Subtotal     string    `json:"subtotal"`
	ProductStock int32     `json:"product_stock"`
}

type cartResponse struct {
	ID    uuid.UUID          `json:"id"`
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
}

// --- Handlers ---

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	cart, err := h.store.GetOrCreateCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithCart(w, r, cart.ID)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be > 0"})
		return
	}

	cart, err := h.store.GetOrCreateCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if _, err := h.store.UpsertCartItem(r.Context(), database.UpsertCartItemParams{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  req.Quantity,
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: add cart item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithCart(w, r, cart.ID)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req struct {
		Quantity int32 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be > 0"})
		return
	}

	cart, err := h.store.GetOrCreateCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if _, err := h.store.SetCartItemQuantity(r.Context(), database.SetCartItemQuantityParams{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  req.Quantity,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not in cart"})
			return
		}
		log.Printf("ERROR: set cart item quantity: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithCart(w, r, cart.ID)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	cart, err := h.store.GetOrCreateCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if _, err := h.store.DeleteCartItem(r.Context(), database.DeleteCartItemParams{
		CartID:    cart.ID,
		ProductID: productID,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not in cart"})
			return
		}
		log.Printf("ERROR: remove cart item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithCart(w, r, cart.ID)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	cart, err := h.store.GetOrCreateCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := h.store.ClearCart(r.Context(), cart.ID); err != nil {
		log.Printf("ERROR: clear cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) respondWithCart(w http.ResponseWriter, r *http.Request, cartID uuid.UUID) {
	rows, err := h.store.ListCartItems(r.Context(), cartID)
	if err != nil {
		log.Printf("ERROR: list cart items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total := decimal.Zero
	items := make([]cartItemResponse, len(rows))
	for i, row := range rows {
		unitPrice := decimal.Zero
		if row.ProductPrice.Valid {
			if val, err := row.ProductPrice.Value(); err == nil && val != nil {
				if d, err := decimal.NewFromString(val.(string)); err == nil {
					unitPrice = d
				}
			}
		}
		subtotal := unitPrice.Mul(decimal.NewFromInt32(row.Quantity))
		total = total.Add(subtotal)
		items[i] = cartItemResponse{
			ProductID:    row.ProductID,
			ProductName:  row.ProductName,
			UnitPrice:    unitPrice.StringFixed(2),
			Quantity:     row.Quantity,
			Subtotal:     subtotal.StringFixed(2),
			ProductStock: row.ProductStock,
		}
	}

	writeJSON(w, http.StatusOK, cartResponse{
		ID:    cartID,
		Items: items,
		Total: total.StringFixed(2),
	})
}
