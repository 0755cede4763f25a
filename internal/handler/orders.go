package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/auth"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/middleware"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/service"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/workflow"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderServicer defines the creation service methods needed by order
// handlers. Satisfied by *service.OrderService; narrow interface for
// testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// WorkflowServicer defines the transition service methods needed by order
// handlers. Satisfied by *service.WorkflowService.
type WorkflowServicer interface {
	Transition(ctx context.Context, orderID uuid.UUID, to workflow.Status, actor service.Actor, pin string) (database.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	Return(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	Confirm(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	StartShipping(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	Deliver(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	PaymentInfo(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error)
}

// OrderStore defines the database methods needed by order read handlers.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// OrderCartStore is the subset of cart methods needed for checkout-from-cart.
type OrderCartStore interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (database.Cart, error)
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]database.ListCartItemsRow, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	wf    WorkflowServicer
	store OrderStore
	carts OrderCartStore
	hub   *ws.Hub
}

// NewOrderHandler creates a new OrderHandler. hub may be nil in tests.
func NewOrderHandler(svc OrderServicer, wf WorkflowServicer, store OrderStore, carts OrderCartStore, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{svc: svc, wf: wf, store: store, carts: carts, hub: hub}
}

// RegisterRoutes registers customer-facing order endpoints.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/actions", h.Actions)
	r.Post("/{id}/cancel", h.Cancel)
}

// RegisterAdminRoutes registers staff transition endpoints, expected to sit
// behind an ADMIN role check.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/ship", h.Ship)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/return", h.Return)
}

// RegisterShipperRoutes registers delivery endpoints, expected to sit behind
// a SHIPPER/ADMIN role check.
func (h *OrderHandler) RegisterShipperRoutes(r chi.Router) {
	r.Post("/{id}/deliver", h.Deliver)
}

// --- Request / Response types ---

type createOrderRequest struct {
	PaymentMethod   string                   `json:"payment_method"`
	ShippingAddress string                   `json:"shipping_address"`
	Phone           string                   `json:"phone"`
	Notes           string                   `json:"notes"`
	FromCart        bool                     `json:"from_cart"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Pin    string `json:"pin"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          string              `json:"status"`
	PaymentMethod   *string             `json:"payment_method"`
	ShippingAddress *string             `json:"shipping_address"`
	Phone           *string             `json:"phone"`
	Notes           *string             `json:"notes"`
	Subtotal        string              `json:"subtotal"`
	TotalAmount     string              `json:"total_amount"`
	ProcessedBy     *string             `json:"processed_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

type paymentResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	PaymentMethod   string    `json:"payment_method"`
	Amount          string    `json:"amount"`
	Status          string    `json:"status"`
	ReferenceNumber *string   `json:"reference_number"`
	ProcessedBy     *string   `json:"processed_by"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// orderDetailResponse extends orderResponse with payments for the GET detail
// endpoint.
type orderDetailResponse struct {
	orderResponse
	Payments []paymentResponse `json:"payments"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// actionsResponse tells the frontend which workflow operations are currently
// available for an order.
type actionsResponse struct {
	Status           string `json:"status"`
	CanCancel        bool   `json:"can_cancel"`
	CanReturn        bool   `json:"can_return"`
	CanConfirm       bool   `json:"can_confirm"`
	CanStartShipping bool   `json:"can_start_shipping"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var items []service.CreateOrderItemRequest
	var cartID uuid.UUID
	if req.FromCart {
		cart, err := h.carts.GetOrCreateCart(r.Context(), claims.UserID)
		if err != nil {
			log.Printf("ERROR: get cart: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		cartID = cart.ID
		rows, err := h.carts.ListCartItems(r.Context(), cart.ID)
		if err != nil {
			log.Printf("ERROR: list cart items: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		for _, row := range rows {
			items = append(items, service.CreateOrderItemRequest{
				ProductID: row.ProductID.String(),
				Quantity:  row.Quantity,
			})
		}
	} else {
		for _, item := range req.Items {
			items = append(items, service.CreateOrderItemRequest{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
	}

	if len(items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		UserID:          claims.UserID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Notes:           req.Notes,
		Items:           items,
	})
	if err != nil {
		if isOrderValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if req.FromCart {
		// Best effort: the order already exists, a stale cart is only a
		// nuisance.
		if err := h.carts.ClearCart(r.Context(), cartID); err != nil {
			log.Printf("ERROR: clear cart after checkout: %v", err)
		}
	}

	h.broadcast("order.created", result.Order)
	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order, result.Items))
}

// List handles GET /orders. Customers see their own orders; staff see all,
// optionally filtered by status code.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if claims.Role == enum.UserRoleCustomer {
		params.UserID = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := workflow.ByCode(s)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
			return
		}
		params.StatusID = pgtype.Int4{Int32: status.ID, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}

	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, order, ok := h.fetchOwnedOrder(w, r)
	if !ok {
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	paymentResps := make([]paymentResponse, len(payments))
	for i, p := range payments {
		paymentResps[i] = toPaymentResponse(p)
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: toOrderResponse(order, items),
		Payments:      paymentResps,
	})
}

// Actions handles GET /orders/{id}/actions.
func (h *OrderHandler) Actions(w http.ResponseWriter, r *http.Request) {
	claims, order, ok := h.fetchOwnedOrder(w, r)
	if !ok {
		return
	}

	status, found := workflow.ByID(order.StatusID)
	if !found {
		log.Printf("ERROR: order %s has unknown status id %d", order.ID, order.StatusID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	info, err := h.wf.PaymentInfo(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: payment info: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	isCustomer := claims.Role == enum.UserRoleCustomer
	writeJSON(w, http.StatusOK, actionsResponse{
		Status:           status.Code,
		CanCancel:        workflow.CanCancel(status, isCustomer),
		CanReturn:        workflow.CanReturn(status),
		CanConfirm:       workflow.CanConfirm(status, info.Method, info.IsPaid),
		CanStartShipping: workflow.CanStartShipping(status, info.Method, info.IsPaid),
	})
}

// UpdateStatus handles PATCH /orders/{id}/status: the generic staff
// transition endpoint, including PIN-gated backward moves.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	to, ok := workflow.ByCode(req.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	order, err := h.wf.Transition(r.Context(), orderID, to, actorFromClaims(claims), req.Pin)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	h.broadcast("order.status_changed", order)
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// Cancel handles POST /orders/{id}/cancel for both customers and staff.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, order, ok := h.fetchOwnedOrder(w, r)
	if !ok {
		return
	}

	updated, err := h.wf.Cancel(r.Context(), order.ID, actorFromClaims(claims))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	h.broadcast("order.status_changed", updated)
	writeJSON(w, http.StatusOK, toOrderResponse(updated, nil))
}

// Confirm handles POST /orders/{id}/confirm.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transitionEndpoint(w, r, h.wf.Confirm)
}

// Ship handles POST /orders/{id}/ship.
func (h *OrderHandler) Ship(w http.ResponseWriter, r *http.Request) {
	h.transitionEndpoint(w, r, h.wf.StartShipping)
}

// Deliver handles POST /orders/{id}/deliver.
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.transitionEndpoint(w, r, h.wf.Deliver)
}

// Complete handles POST /orders/{id}/complete.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transitionEndpoint(w, r, h.wf.Complete)
}

// Return handles POST /orders/{id}/return.
func (h *OrderHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.transitionEndpoint(w, r, h.wf.Return)
}

// --- Helpers ---

type transitionFunc func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)

func (h *OrderHandler) transitionEndpoint(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
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

	order, err := fn(r.Context(), orderID, actorFromClaims(claims))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	h.broadcast("order.status_changed", order)
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// fetchOwnedOrder loads the order and enforces that customers only see their
// own. Writes the error response itself when ok is false.
func (h *OrderHandler) fetchOwnedOrder(w http.ResponseWriter, r *http.Request) (claims *auth.Claims, order database.Order, ok bool) {
	claims = middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return nil, database.Order{}, false
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return nil, database.Order{}, false
	}

	order, err = h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return nil, database.Order{}, false
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return nil, database.Order{}, false
	}

	if claims.Role == enum.UserRoleCustomer && order.UserID != claims.UserID {
		// Hide other customers' orders entirely.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return nil, database.Order{}, false
	}

	return claims, order, true
}

// writeWorkflowError maps workflow and service errors to HTTP status codes.
// Workflow rejections carry a machine-readable code so the frontend can react
// (e.g. prompt for payment on PAYMENT_NOT_CONFIRMED).
func (h *OrderHandler) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, workflow.ErrPaymentNotConfirmed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "PAYMENT_NOT_CONFIRMED"})
	case errors.Is(err, workflow.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "INSUFFICIENT_STOCK"})
	case errors.Is(err, workflow.ErrUnauthorizedBackward):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error(), "code": "UNAUTHORIZED_BACKWARD_MOVE"})
	case errors.Is(err, workflow.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry", "code": "CONCURRENT_MODIFICATION"})
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "INVALID_TRANSITION"})
	case errors.Is(err, service.ErrCancelNotAllowed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "INVALID_TRANSITION"})
	case errors.Is(err, service.ErrRefundRequired):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "REFUND_REQUIRED"})
	case errors.Is(err, service.ErrCODNotPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "PAYMENT_NOT_CONFIRMED"})
	default:
		log.Printf("ERROR: order transition: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *OrderHandler) broadcast(eventType string, order database.Order) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(toOrderResponse(order, nil))
	if err != nil {
		return
	}
	event := ws.Event{Type: eventType, Payload: payload}
	h.hub.Broadcast(event)
	h.hub.BroadcastToUser(order.UserID, event)
}

func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidPaymentMethod)
}

func actorFromClaims(claims *auth.Claims) service.Actor {
	return service.Actor{ID: claims.UserID, Role: claims.Role}
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Subtotal:    numericToString(o.Subtotal),
		TotalAmount: numericToString(o.TotalAmount),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}

	if status, ok := workflow.ByID(o.StatusID); ok {
		resp.Status = status.Code
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.ShippingAddress.Valid {
		resp.ShippingAddress = &o.ShippingAddress.String
	}
	if o.Phone.Valid {
		resp.Phone = &o.Phone.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.ProcessedBy.Valid {
		s := uuid.UUID(o.ProcessedBy.Bytes).String()
		resp.ProcessedBy = &s
	}

	if items != nil {
		resp.Items = make([]orderItemResponse, len(items))
		for i, item := range items {
			resp.Items[i] = orderItemResponse{
				ID:        item.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: numericToString(item.UnitPrice),
				Subtotal:  numericToString(item.Subtotal),
			}
		}
	}

	return resp
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Amount:        numericToString(p.Amount),
		Status:        p.Status,
		ProcessedAt:   p.ProcessedAt,
	}
	if p.ReferenceNumber.Valid {
		resp.ReferenceNumber = &p.ReferenceNumber.String
	}
	if p.ProcessedBy.Valid {
		s := uuid.UUID(p.ProcessedBy.Bytes).String()
		resp.ProcessedBy = &s
	}
	return resp
}
