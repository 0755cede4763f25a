package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// PaymentStore defines the database methods needed by payment handlers.
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	MarkPaymentCompleted(ctx context.Context, arg database.MarkPaymentCompletedParams) (database.Payment, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	store PaymentStore
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(store PaymentStore) *PaymentHandler {
	return &PaymentHandler{store: store}
}

// RegisterOrderRoutes registers payment endpoints nested under an order.
func (h *PaymentHandler) RegisterOrderRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.ListByOrder)
	r.Post("/{id}/pay", h.Pay)
}

// RegisterOrderAdminRoutes registers staff payment endpoints nested under an
// order.
func (h *PaymentHandler) RegisterOrderAdminRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.Create)
}

// RegisterAdminRoutes registers staff payment endpoints.
func (h *PaymentHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/payments/{id}/complete", h.Complete)
}

type createPaymentRequest struct {
	PaymentMethod   string `json:"payment_method"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
	ReferenceNumber string `json:"reference_number"`
}

// Pay handles POST /orders/{id}/pay: a customer settling their own WALLET
// order. Records a COMPLETED wallet payment for the order's full total.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if claims.Role == enum.UserRoleCustomer && order.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if !order.PaymentMethod.Valid || order.PaymentMethod.String != enum.PaymentMethodWallet {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order is not a wallet order"})
		return
	}

	existing, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, p := range existing {
		if p.Status == enum.PaymentStatusCompleted {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already paid"})
			return
		}
	}

	payment, err := h.store.CreatePayment(r.Context(), database.CreatePaymentParams{
		OrderID:       orderID,
		PaymentMethod: enum.PaymentMethodWallet,
		Amount:        order.TotalAmount,
		Status:        enum.PaymentStatusCompleted,
		ProcessedBy:   pgtype.UUID{Bytes: claims.UserID, Valid: true},
	})
	if err != nil {
		// The pre-check above races with concurrent settlements; the partial
		// unique index on completed payments is the authoritative check.
		if isDuplicateCompletedPayment(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already paid"})
			return
		}
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

// ListByOrder handles GET /orders/{id}/payments.
func (h *PaymentHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if claims.Role == enum.UserRoleCustomer && order.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": resp})
}

// Create handles POST /orders/{id}/payments: staff recording a payment (e.g.
// COD cash collected on delivery).
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PaymentMethod != enum.PaymentMethodCOD && req.PaymentMethod != enum.PaymentMethodWallet {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method"})
		return
	}

	status := req.Status
	if status == "" {
		status = enum.PaymentStatusCompleted
	}
	if status != enum.PaymentStatusPending && status != enum.PaymentStatusCompleted && status != enum.PaymentStatusFailed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment status"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	params := database.CreatePaymentParams{
		OrderID:       order.ID,
		PaymentMethod: req.PaymentMethod,
		Amount:        decimalToNumeric(amount),
		Status:        status,
		ProcessedBy:   pgtype.UUID{Bytes: claims.UserID, Valid: true},
	}
	if req.ReferenceNumber != "" {
		params.ReferenceNumber = pgtype.Text{String: req.ReferenceNumber, Valid: true}
	}

	payment, err := h.store.CreatePayment(r.Context(), params)
	if err != nil {
		if isDuplicateCompletedPayment(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order already has a completed payment"})
			return
		}
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

// Complete handles POST /payments/{id}/complete.
func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	payment, err := h.store.MarkPaymentCompleted(r.Context(), database.MarkPaymentCompletedParams{
		ID:          paymentID,
		ProcessedBy: pgtype.UUID{Bytes: claims.UserID, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "pending payment not found"})
			return
		}
		log.Printf("ERROR: complete payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func isDuplicateCompletedPayment(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		pgErr.ConstraintName == "payments_one_completed_per_order"
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
