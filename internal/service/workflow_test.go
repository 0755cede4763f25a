package service

import (
	"context"
	"errors"
	"testing"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock implementations ---

// mockWorkflowStore implements WorkflowStore with configurable behavior and
// records writes for assertions.
type mockWorkflowStore struct {
	order    database.Order
	orderErr error

	items []database.OrderItem

	payment    database.Payment
	paymentErr error

	stocks map[uuid.UUID]int32

	updateErr error

	statusWrites  []database.UpdateOrderStatusParams
	deltaWrites   []database.ApplyStockDeltasParams
	adjustments   []database.CreateInventoryAdjustmentParams
	lockedIDs     [][]uuid.UUID
	getOrderCalls int
}

func (m *mockWorkflowStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	m.getOrderCalls++
	if m.orderErr != nil {
		return database.Order{}, m.orderErr
	}
	return m.order, nil
}

func (m *mockWorkflowStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.items, nil
}

func (m *mockWorkflowStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateErr != nil {
		return database.Order{}, m.updateErr
	}
	m.statusWrites = append(m.statusWrites, arg)
	updated := m.order
	updated.StatusID = arg.StatusID
	updated.ProcessedBy = arg.ProcessedBy
	return updated, nil
}

func (m *mockWorkflowStore) GetDominantPayment(ctx context.Context, orderID uuid.UUID) (database.Payment, error) {
	if m.paymentErr != nil {
		return database.Payment{}, m.paymentErr
	}
	return m.payment, nil
}

func (m *mockWorkflowStore) GetProductStocksForUpdate(ctx context.Context, ids []uuid.UUID) ([]database.ProductStock, error) {
	m.lockedIDs = append(m.lockedIDs, ids)
	var out []database.ProductStock
	for _, id := range ids {
		stock, ok := m.stocks[id]
		if !ok {
			continue
		}
		out = append(out, database.ProductStock{ID: id, Stock: stock})
	}
	return out, nil
}

func (m *mockWorkflowStore) ApplyStockDeltas(ctx context.Context, arg database.ApplyStockDeltasParams) (int64, error) {
	m.deltaWrites = append(m.deltaWrites, arg)
	return int64(len(arg.ProductIds)), nil
}

func (m *mockWorkflowStore) CreateInventoryAdjustment(ctx context.Context, arg database.CreateInventoryAdjustmentParams) (database.InventoryAdjustment, error) {
	m.adjustments = append(m.adjustments, arg)
	return database.InventoryAdjustment{}, nil
}

// --- Helpers ---

const testOperatorPIN = "1234"

var (
	adminActor    = Actor{ID: uuid.New(), Role: enum.UserRoleAdmin}
	customerActor = Actor{ID: uuid.New(), Role: enum.UserRoleCustomer}
)

func pendingOrder(method string) database.Order {
	return database.Order{
		ID:            uuid.New(),
		OrderNumber:   "CCO-000001",
		UserID:        customerActor.ID,
		StatusID:      workflow.Pending.ID,
		PaymentMethod: pgtype.Text{String: method, Valid: method != ""},
	}
}

func newTestWorkflowService(store *mockWorkflowStore) *WorkflowService {
	return NewWorkflowService(
		&mockTxBeginner{tx: &mockTx{}},
		func(db database.DBTX) WorkflowStore { return store },
		testOperatorPIN,
	)
}

func completedPayment(method string) database.Payment {
	return database.Payment{
		ID:            uuid.New(),
		PaymentMethod: method,
		Status:        enum.PaymentStatusCompleted,
	}
}

// --- Tests ---

func TestConfirmDeductsStockAndSwapsStatus(t *testing.T) {
	productA := uuid.New()
	productB := uuid.New()
	order := pendingOrder(enum.PaymentMethodCOD)

	store := &mockWorkflowStore{
		order: order,
		items: []database.OrderItem{
			{OrderID: order.ID, ProductID: productA, Quantity: 3},
			{OrderID: order.ID, ProductID: productB, Quantity: 1},
		},
		paymentErr: pgx.ErrNoRows,
		stocks:     map[uuid.UUID]int32{productA: 10, productB: 5},
	}

	svc := newTestWorkflowService(store)
	updated, err := svc.Confirm(context.Background(), order.ID, adminActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.StatusID != workflow.Confirmed.ID {
		t.Errorf("updated status = %d, want CONFIRMED", updated.StatusID)
	}

	if len(store.statusWrites) != 1 {
		t.Fatalf("expected 1 status write, got %d", len(store.statusWrites))
	}
	write := store.statusWrites[0]
	if write.StatusID != workflow.Confirmed.ID || write.ExpectedStatus != workflow.Pending.ID {
		t.Errorf("status write = %+v, want CAS from PENDING to CONFIRMED", write)
	}
	if !write.ProcessedBy.Valid || uuid.UUID(write.ProcessedBy.Bytes) != adminActor.ID {
		t.Errorf("processed_by = %+v, want acting admin", write.ProcessedBy)
	}

	if len(store.deltaWrites) != 1 {
		t.Fatalf("expected 1 delta batch, got %d", len(store.deltaWrites))
	}
	batch := store.deltaWrites[0]
	if len(batch.ProductIds) != 2 || batch.Deltas[0] != -3 || batch.Deltas[1] != -1 {
		t.Errorf("deltas = %+v, want -3 and -1", batch)
	}

	if len(store.adjustments) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(store.adjustments))
	}
	for _, adj := range store.adjustments {
		if adj.Reason != enum.AdjustmentReasonSale {
			t.Errorf("ledger reason = %s, want SALE", adj.Reason)
		}
		if adj.CreatedBy != adminActor.ID {
			t.Errorf("ledger created_by = %s, want acting admin", adj.CreatedBy)
		}
	}
}

func TestConfirmWalletUnpaidRejected(t *testing.T) {
	order := pendingOrder(enum.PaymentMethodWallet)
	store := &mockWorkflowStore{
		order: order,
		payment: database.Payment{
			PaymentMethod: enum.PaymentMethodWallet,
			Status:        enum.PaymentStatusPending,
		},
	}

	svc := newTestWorkflowService(store)
	_, err := svc.Confirm(context.Background(), order.ID, adminActor)
	if !errors.Is(err, workflow.ErrPaymentNotConfirmed) {
		t.Fatalf("got %v, want ErrPaymentNotConfirmed", err)
	}
	if len(store.statusWrites) != 0 || len(store.deltaWrites) != 0 {
		t.Error("rejected confirmation must not write anything")
	}
}

func TestConfirmWalletNoPaymentRowRejected(t *testing.T) {
	// No payment recorded at all: falls back to the order's chosen method, so
	// a wallet order without a completed payment still cannot confirm.
	order := pendingOrder(enum.PaymentMethodWallet)
	store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

	svc := newTestWorkflowService(store)
	_, err := svc.Confirm(context.Background(), order.ID, adminActor)
	if !errors.Is(err, workflow.ErrPaymentNotConfirmed) {
		t.Fatalf("got %v, want ErrPaymentNotConfirmed", err)
	}
}

func TestTransitionOrderNotFound(t *testing.T) {
	store := &mockWorkflowStore{orderErr: pgx.ErrNoRows}
	svc := newTestWorkflowService(store)
	_, err := svc.Confirm(context.Background(), uuid.New(), adminActor)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}

func TestCancelPolicy(t *testing.T) {
	t.Run("pending cod order cancels", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

		svc := newTestWorkflowService(store)
		updated, err := svc.Cancel(context.Background(), order.ID, customerActor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.StatusID != workflow.Cancelled.ID {
			t.Errorf("status = %d, want CANCELLED", updated.StatusID)
		}
		// Stock was never deducted at PENDING, so nothing to restore.
		if len(store.deltaWrites) != 0 {
			t.Error("cancelling a PENDING order must not touch stock")
		}
	})

	t.Run("confirmed order no longer cancellable", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		order.StatusID = workflow.Confirmed.ID
		store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

		svc := newTestWorkflowService(store)
		_, err := svc.Cancel(context.Background(), order.ID, adminActor)
		if !errors.Is(err, ErrCancelNotAllowed) {
			t.Fatalf("got %v, want ErrCancelNotAllowed", err)
		}
	})

	t.Run("customer with completed wallet payment needs refund", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodWallet)
		store := &mockWorkflowStore{order: order, payment: completedPayment(enum.PaymentMethodWallet)}

		svc := newTestWorkflowService(store)
		_, err := svc.Cancel(context.Background(), order.ID, customerActor)
		if !errors.Is(err, ErrRefundRequired) {
			t.Fatalf("got %v, want ErrRefundRequired", err)
		}
	})

	t.Run("admin may cancel a paid wallet order directly", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodWallet)
		store := &mockWorkflowStore{order: order, payment: completedPayment(enum.PaymentMethodWallet)}

		svc := newTestWorkflowService(store)
		updated, err := svc.Cancel(context.Background(), order.ID, adminActor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.StatusID != workflow.Cancelled.ID {
			t.Errorf("status = %d, want CANCELLED", updated.StatusID)
		}
	})
}

func TestCancelDecidesUnderTheRowLock(t *testing.T) {
	// The status the cancellation policy sees is the one the row lock
	// protects. An order confirmed before the lock was acquired is rejected
	// outright rather than fired as CONFIRMED->CANCELLED, which would restore
	// stock on the customer's behalf.
	product := uuid.New()
	order := pendingOrder(enum.PaymentMethodCOD)
	order.StatusID = workflow.Confirmed.ID
	store := &mockWorkflowStore{
		order:      order,
		items:      []database.OrderItem{{OrderID: order.ID, ProductID: product, Quantity: 2}},
		paymentErr: pgx.ErrNoRows,
		stocks:     map[uuid.UUID]int32{product: 8},
	}

	svc := newTestWorkflowService(store)
	_, err := svc.Cancel(context.Background(), order.ID, customerActor)
	if !errors.Is(err, ErrCancelNotAllowed) {
		t.Fatalf("got %v, want ErrCancelNotAllowed", err)
	}
	if len(store.statusWrites) != 0 {
		t.Error("rejected cancel must not write status")
	}
	if len(store.deltaWrites) != 0 {
		t.Error("rejected cancel must not restore stock")
	}
	// Policy check and write share one locked read; there is no separate
	// pre-check transaction whose answer could go stale.
	if store.getOrderCalls != 1 {
		t.Errorf("order locked %d times, want 1", store.getOrderCalls)
	}
}

func TestCancelSingleLockedRead(t *testing.T) {
	order := pendingOrder(enum.PaymentMethodCOD)
	store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

	svc := newTestWorkflowService(store)
	if _, err := svc.Cancel(context.Background(), order.ID, customerActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.getOrderCalls != 1 {
		t.Errorf("order locked %d times, want 1", store.getOrderCalls)
	}
}

func TestCompleteCODRequiresPayment(t *testing.T) {
	t.Run("unpaid cod rejected", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		order.StatusID = workflow.Delivered.ID
		store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

		svc := newTestWorkflowService(store)
		_, err := svc.Complete(context.Background(), order.ID, adminActor)
		if !errors.Is(err, ErrCODNotPaid) {
			t.Fatalf("got %v, want ErrCODNotPaid", err)
		}
		if len(store.statusWrites) != 0 {
			t.Error("rejected completion must not write status")
		}
	})

	t.Run("paid cod completes", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		order.StatusID = workflow.Delivered.ID
		store := &mockWorkflowStore{order: order, payment: completedPayment(enum.PaymentMethodCOD)}

		svc := newTestWorkflowService(store)
		updated, err := svc.Complete(context.Background(), order.ID, adminActor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.StatusID != workflow.Completed.ID {
			t.Errorf("status = %d, want COMPLETED", updated.StatusID)
		}
	})
}

func TestGenericTransitionEnforcesCODGate(t *testing.T) {
	// A DELIVERED COD order whose only payment row is still PENDING must not
	// reach COMPLETED through the generic transition path either; the gate is
	// shared with Complete.
	order := pendingOrder(enum.PaymentMethodCOD)
	order.StatusID = workflow.Delivered.ID
	store := &mockWorkflowStore{
		order: order,
		payment: database.Payment{
			PaymentMethod: enum.PaymentMethodCOD,
			Status:        enum.PaymentStatusPending,
		},
	}

	svc := newTestWorkflowService(store)
	_, err := svc.Transition(context.Background(), order.ID, workflow.Completed, adminActor, "")
	if !errors.Is(err, ErrCODNotPaid) {
		t.Fatalf("got %v, want ErrCODNotPaid", err)
	}
	if len(store.statusWrites) != 0 {
		t.Error("unpaid COD order must stay DELIVERED")
	}
}

func TestConfirmInsufficientStock(t *testing.T) {
	product := uuid.New()
	order := pendingOrder(enum.PaymentMethodCOD)
	store := &mockWorkflowStore{
		order:      order,
		items:      []database.OrderItem{{OrderID: order.ID, ProductID: product, Quantity: 100}},
		paymentErr: pgx.ErrNoRows,
		stocks:     map[uuid.UUID]int32{product: 5},
	}

	svc := newTestWorkflowService(store)
	_, err := svc.Confirm(context.Background(), order.ID, adminActor)

	var stockErr *workflow.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if stockErr.ProductID != product.String() {
		t.Errorf("error names %s, want %s", stockErr.ProductID, product)
	}
	if len(store.deltaWrites) != 0 {
		t.Error("no deltas may be applied when the pre-check fails")
	}
	if len(store.statusWrites) != 0 {
		t.Error("status must stay PENDING on insufficient stock")
	}
}

func TestConfirmAggregatesDuplicateLines(t *testing.T) {
	product := uuid.New()
	order := pendingOrder(enum.PaymentMethodCOD)
	store := &mockWorkflowStore{
		order: order,
		items: []database.OrderItem{
			{OrderID: order.ID, ProductID: product, Quantity: 2},
			{OrderID: order.ID, ProductID: product, Quantity: 3},
		},
		paymentErr: pgx.ErrNoRows,
		stocks:     map[uuid.UUID]int32{product: 10},
	}

	svc := newTestWorkflowService(store)
	if _, err := svc.Confirm(context.Background(), order.ID, adminActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.deltaWrites) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(store.deltaWrites))
	}
	batch := store.deltaWrites[0]
	if len(batch.ProductIds) != 1 || batch.Deltas[0] != -5 {
		t.Errorf("batch = %+v, want one summed delta of -5", batch)
	}
}

func TestTransitionConcurrentStatusWrite(t *testing.T) {
	order := pendingOrder(enum.PaymentMethodCOD)
	order.StatusID = workflow.Shipping.ID
	store := &mockWorkflowStore{
		order:      order,
		paymentErr: pgx.ErrNoRows,
		updateErr:  pgx.ErrNoRows, // CAS found a different status
	}

	svc := newTestWorkflowService(store)
	_, err := svc.Deliver(context.Background(), order.ID, adminActor)
	if !errors.Is(err, workflow.ErrConcurrentModification) {
		t.Fatalf("got %v, want ErrConcurrentModification", err)
	}
}

func TestTransitionBackwardMove(t *testing.T) {
	t.Run("wrong pin", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		order.StatusID = workflow.Delivered.ID
		store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

		svc := newTestWorkflowService(store)
		_, err := svc.Transition(context.Background(), order.ID, workflow.Shipping, adminActor, "0000")
		if !errors.Is(err, workflow.ErrUnauthorizedBackward) {
			t.Fatalf("got %v, want ErrUnauthorizedBackward", err)
		}
	})

	t.Run("correct pin", func(t *testing.T) {
		order := pendingOrder(enum.PaymentMethodCOD)
		order.StatusID = workflow.Delivered.ID
		store := &mockWorkflowStore{order: order, paymentErr: pgx.ErrNoRows}

		svc := newTestWorkflowService(store)
		updated, err := svc.Transition(context.Background(), order.ID, workflow.Shipping, adminActor, testOperatorPIN)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.StatusID != workflow.Shipping.ID {
			t.Errorf("status = %d, want SHIPPING", updated.StatusID)
		}
		if len(store.deltaWrites) != 0 {
			t.Error("backward moves carry no stock side effect")
		}
	})
}

func TestReturnRestoresStock(t *testing.T) {
	product := uuid.New()
	order := pendingOrder(enum.PaymentMethodWallet)
	order.StatusID = workflow.Delivered.ID
	store := &mockWorkflowStore{
		order:   order,
		items:   []database.OrderItem{{OrderID: order.ID, ProductID: product, Quantity: 4}},
		payment: completedPayment(enum.PaymentMethodWallet),
		stocks:  map[uuid.UUID]int32{product: 0},
	}

	svc := newTestWorkflowService(store)
	updated, err := svc.Return(context.Background(), order.ID, adminActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.StatusID != workflow.Returned.ID {
		t.Errorf("status = %d, want RETURNED", updated.StatusID)
	}

	if len(store.deltaWrites) != 1 || store.deltaWrites[0].Deltas[0] != 4 {
		t.Errorf("deltas = %+v, want +4", store.deltaWrites)
	}
	if len(store.adjustments) != 1 || store.adjustments[0].Reason != enum.AdjustmentReasonReturn {
		t.Errorf("adjustments = %+v, want one RETURN entry", store.adjustments)
	}
}
