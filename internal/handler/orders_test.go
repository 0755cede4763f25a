package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/auth"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/handler"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/middleware"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/service"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/workflow"
)

const testJWTSecret = "test-secret-for-orders"

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}

// --- Mock WorkflowServicer ---

type mockWorkflowService struct {
	transitionFn  func(ctx context.Context, orderID uuid.UUID, to workflow.Status, actor service.Actor, pin string) (database.Order, error)
	cancelFn      func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	returnFn      func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	confirmFn     func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	shipFn        func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	deliverFn     func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	completeFn    func(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error)
	paymentInfoFn func(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error)
}

func (m *mockWorkflowService) Transition(ctx context.Context, orderID uuid.UUID, to workflow.Status, actor service.Actor, pin string) (database.Order, error) {
	return m.transitionFn(ctx, orderID, to, actor, pin)
}
func (m *mockWorkflowService) Cancel(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.cancelFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) Return(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.returnFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) Confirm(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.confirmFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) StartShipping(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.shipFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) Deliver(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.deliverFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) Complete(ctx context.Context, orderID uuid.UUID, actor service.Actor) (database.Order, error) {
	return m.completeFn(ctx, orderID, actor)
}
func (m *mockWorkflowService) PaymentInfo(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error) {
	if m.paymentInfoFn != nil {
		return m.paymentInfoFn(ctx, orderID)
	}
	return workflow.PaymentInfo{}, nil
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn       func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn     func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listPaymentsFn   func(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}
func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}
func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsFn != nil {
		return m.listOrderItemsFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}
func (m *mockOrderStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, orderID)
	}
	return []database.Payment{}, nil
}

// --- Mock OrderCartStore ---

type mockOrderCartStore struct {
	cart      database.Cart
	items     []database.ListCartItemsRow
	clearedID uuid.UUID
}

func (m *mockOrderCartStore) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (database.Cart, error) {
	return m.cart, nil
}
func (m *mockOrderCartStore) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]database.ListCartItemsRow, error) {
	return m.items, nil
}
func (m *mockOrderCartStore) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	m.clearedID = cartID
	return nil
}

// --- Test helpers ---

type orderTestDeps struct {
	svc   *mockOrderService
	wf    *mockWorkflowService
	store *mockOrderStore
	carts *mockOrderCartStore
}

func setupOrderRouter(deps orderTestDeps) *chi.Mux {
	h := handler.NewOrderHandler(deps.svc, deps.wf, deps.store, deps.carts, nil)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/orders", func(r chi.Router) {
		h.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enum.UserRoleAdmin))
			h.RegisterAdminRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enum.UserRoleAdmin, enum.UserRoleShipper))
			h.RegisterShipperRoutes(r)
		})
	})
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, userID uuid.UUID, role string) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, userID, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func testOrder(userID uuid.UUID, statusID int32) database.Order {
	return database.Order{
		ID:          uuid.New(),
		OrderNumber: "CCO-000007",
		UserID:      userID,
		StatusID:    statusID,
	}
}

// --- Tests ---

func TestCreateOrderEndpoint(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()

	var gotReq service.CreateOrderRequest
	deps := orderTestDeps{
		svc: &mockOrderService{
			createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
				gotReq = req
				return &service.CreateOrderResult{
					Order: testOrder(req.UserID, workflow.Pending.ID),
				}, nil
			},
		},
		carts: &mockOrderCartStore{},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "COD",
		"items": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 2},
		},
	}, userID, enum.UserRoleCustomer)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotReq.UserID != userID {
		t.Error("order must be created for the authenticated user")
	}
	if len(gotReq.Items) != 1 || gotReq.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", gotReq.Items)
	}

	body := decodeBody(t, rec)
	if body["status"] != "PENDING" {
		t.Errorf("status = %v, want PENDING", body["status"])
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	userID := uuid.New()
	cartID := uuid.New()
	productID := uuid.New()

	carts := &mockOrderCartStore{
		cart: database.Cart{ID: cartID, UserID: userID},
		items: []database.ListCartItemsRow{
			{CartID: cartID, ProductID: productID, Quantity: 3},
		},
	}
	deps := orderTestDeps{
		svc: &mockOrderService{
			createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
				return &service.CreateOrderResult{Order: testOrder(req.UserID, workflow.Pending.ID)}, nil
			},
		},
		carts: carts,
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "WALLET",
		"from_cart":      true,
	}, userID, enum.UserRoleCustomer)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if carts.clearedID != cartID {
		t.Error("cart must be cleared after checkout")
	}
}

func TestCreateOrderEmptyItems(t *testing.T) {
	deps := orderTestDeps{
		svc:   &mockOrderService{},
		carts: &mockOrderCartStore{},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "COD",
	}, uuid.New(), enum.UserRoleCustomer)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListOrdersScopedToCustomer(t *testing.T) {
	userID := uuid.New()

	var gotParams database.ListOrdersParams
	deps := orderTestDeps{
		store: &mockOrderStore{
			listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
				gotParams = arg
				return []database.Order{testOrder(userID, workflow.Pending.ID)}, nil
			},
		},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodGet, "/orders?status=PENDING", nil, userID, enum.UserRoleCustomer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if !gotParams.UserID.Valid || uuid.UUID(gotParams.UserID.Bytes) != userID {
		t.Error("customer listing must be filtered to the caller's orders")
	}
	if !gotParams.StatusID.Valid || gotParams.StatusID.Int32 != workflow.Pending.ID {
		t.Errorf("status filter = %+v, want PENDING", gotParams.StatusID)
	}
}

func TestListOrdersAdminSeesAll(t *testing.T) {
	var gotParams database.ListOrdersParams
	deps := orderTestDeps{
		store: &mockOrderStore{
			listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
				gotParams = arg
				return nil, nil
			},
		},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodGet, "/orders", nil, uuid.New(), enum.UserRoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotParams.UserID.Valid {
		t.Error("admin listing must not be user-filtered")
	}
}

func TestGetOrderOwnership(t *testing.T) {
	owner := uuid.New()
	order := testOrder(owner, workflow.Confirmed.ID)

	deps := orderTestDeps{
		store: &mockOrderStore{
			getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				if id == order.ID {
					return order, nil
				}
				return database.Order{}, pgx.ErrNoRows
			},
		},
	}
	router := setupOrderRouter(deps)

	t.Run("owner can read", func(t *testing.T) {
		rec := doAuthRequest(t, router, http.MethodGet, "/orders/"+order.ID.String(), nil, owner, enum.UserRoleCustomer)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("other customer gets 404", func(t *testing.T) {
		rec := doAuthRequest(t, router, http.MethodGet, "/orders/"+order.ID.String(), nil, uuid.New(), enum.UserRoleCustomer)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("admin can read any", func(t *testing.T) {
		rec := doAuthRequest(t, router, http.MethodGet, "/orders/"+order.ID.String(), nil, uuid.New(), enum.UserRoleAdmin)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("unknown order 404", func(t *testing.T) {
		rec := doAuthRequest(t, router, http.MethodGet, "/orders/"+uuid.NewString(), nil, owner, enum.UserRoleCustomer)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestUpdateStatusEndpoint(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()

	t.Run("forwards target and pin", func(t *testing.T) {
		var gotTo workflow.Status
		var gotPIN string
		deps := orderTestDeps{
			wf: &mockWorkflowService{
				transitionFn: func(ctx context.Context, id uuid.UUID, to workflow.Status, actor service.Actor, pin string) (database.Order, error) {
					gotTo, gotPIN = to, pin
					return testOrder(uuid.New(), to.ID), nil
				},
			},
		}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPatch, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "SHIPPING", "pin": "1234"}, adminID, enum.UserRoleAdmin)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if gotTo != workflow.Shipping || gotPIN != "1234" {
			t.Errorf("forwarded to=%v pin=%q", gotTo, gotPIN)
		}
	})

	t.Run("unknown status code", func(t *testing.T) {
		deps := orderTestDeps{wf: &mockWorkflowService{}}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPatch, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "TELEPORTED"}, adminID, enum.UserRoleAdmin)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("customer forbidden", func(t *testing.T) {
		deps := orderTestDeps{wf: &mockWorkflowService{}}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPatch, "/orders/"+orderID.String()+"/status",
			map[string]string{"status": "SHIPPING"}, uuid.New(), enum.UserRoleCustomer)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestUpdateStatusErrorMapping(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()

	tests := []struct {
		name     string
		err      error
		wantHTTP int
		wantCode string
	}{
		{
			"invalid transition",
			&workflow.InvalidTransitionError{From: workflow.Pending, To: workflow.Shipping, Reason: "would skip steps"},
			http.StatusConflict, "INVALID_TRANSITION",
		},
		{
			"payment not confirmed",
			&workflow.PaymentNotConfirmedError{From: workflow.Pending, To: workflow.Confirmed},
			http.StatusConflict, "PAYMENT_NOT_CONFIRMED",
		},
		{
			"unauthorized backward",
			workflow.ErrUnauthorizedBackward,
			http.StatusForbidden, "UNAUTHORIZED_BACKWARD_MOVE",
		},
		{
			"concurrent modification",
			workflow.ErrConcurrentModification,
			http.StatusConflict, "CONCURRENT_MODIFICATION",
		},
		{
			"insufficient stock",
			&workflow.InsufficientStockError{ProductID: uuid.NewString()},
			http.StatusConflict, "INSUFFICIENT_STOCK",
		},
		{
			"order not found",
			service.ErrOrderNotFound,
			http.StatusNotFound, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := orderTestDeps{
				wf: &mockWorkflowService{
					transitionFn: func(ctx context.Context, id uuid.UUID, to workflow.Status, actor service.Actor, pin string) (database.Order, error) {
						return database.Order{}, tt.err
					},
				},
			}
			router := setupOrderRouter(deps)

			rec := doAuthRequest(t, router, http.MethodPatch, "/orders/"+orderID.String()+"/status",
				map[string]string{"status": "CONFIRMED"}, adminID, enum.UserRoleAdmin)
			if rec.Code != tt.wantHTTP {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantHTTP, rec.Body.String())
			}
			if tt.wantCode != "" {
				body := decodeBody(t, rec)
				if body["code"] != tt.wantCode {
					t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
				}
			}
		})
	}
}

func TestCancelEndpoint(t *testing.T) {
	owner := uuid.New()
	order := testOrder(owner, workflow.Pending.ID)

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
	}

	t.Run("success", func(t *testing.T) {
		deps := orderTestDeps{
			store: store,
			wf: &mockWorkflowService{
				cancelFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Order, error) {
					cancelled := order
					cancelled.StatusID = workflow.Cancelled.ID
					return cancelled, nil
				},
			},
		}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", nil, owner, enum.UserRoleCustomer)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["status"] != "CANCELLED" {
			t.Errorf("status = %v, want CANCELLED", body["status"])
		}
	})

	t.Run("not cancellable", func(t *testing.T) {
		deps := orderTestDeps{
			store: store,
			wf: &mockWorkflowService{
				cancelFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Order, error) {
					return database.Order{}, service.ErrCancelNotAllowed
				},
			},
		}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", nil, owner, enum.UserRoleCustomer)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("refund required", func(t *testing.T) {
		deps := orderTestDeps{
			store: store,
			wf: &mockWorkflowService{
				cancelFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Order, error) {
					return database.Order{}, service.ErrRefundRequired
				},
			},
		}
		router := setupOrderRouter(deps)

		rec := doAuthRequest(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", nil, owner, enum.UserRoleCustomer)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["code"] != "REFUND_REQUIRED" {
			t.Errorf("code = %v, want REFUND_REQUIRED", body["code"])
		}
	})
}

func TestActionsEndpoint(t *testing.T) {
	owner := uuid.New()
	order := testOrder(owner, workflow.Pending.ID)

	deps := orderTestDeps{
		store: &mockOrderStore{
			getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
				return order, nil
			},
		},
		wf: &mockWorkflowService{
			paymentInfoFn: func(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error) {
				return workflow.PaymentInfo{Method: enum.PaymentMethodWallet, IsPaid: false}, nil
			},
		},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodGet, "/orders/"+order.ID.String()+"/actions", nil, owner, enum.UserRoleCustomer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["can_cancel"] != true {
		t.Error("PENDING order should be cancellable")
	}
	if body["can_confirm"] != false {
		t.Error("unpaid wallet order should not be confirmable")
	}
	if body["can_return"] != false {
		t.Error("PENDING order should not be returnable")
	}
}

func TestShipperCanDeliver(t *testing.T) {
	orderID := uuid.New()
	deps := orderTestDeps{
		wf: &mockWorkflowService{
			deliverFn: func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Order, error) {
				return testOrder(uuid.New(), workflow.Delivered.ID), nil
			},
		},
	}
	router := setupOrderRouter(deps)

	rec := doAuthRequest(t, router, http.MethodPost, "/orders/"+orderID.String()+"/deliver", nil, uuid.New(), enum.UserRoleShipper)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// But shippers cannot confirm orders.
	rec = doAuthRequest(t, router, http.MethodPost, "/orders/"+orderID.String()+"/confirm", nil, uuid.New(), enum.UserRoleShipper)
	if rec.Code != http.StatusForbidden {
		t.Errorf("confirm as shipper: status = %d, want 403", rec.Code)
	}
}
