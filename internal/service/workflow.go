package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Errors returned by the workflow service.
var (
	ErrCancelNotAllowed = errors.New("order can no longer be cancelled")
	ErrRefundRequired   = errors.New("order has a completed wallet payment, contact support for a refund")
	ErrCODNotPaid       = errors.New("cash payment must be confirmed before completing the order")
)

// WorkflowStore defines the DB methods the transition path needs.
// Satisfied by *database.Queries.
type WorkflowStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	GetDominantPayment(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	GetProductStocksForUpdate(ctx context.Context, ids []uuid.UUID) ([]database.ProductStock, error)
	ApplyStockDeltas(ctx context.Context, arg database.ApplyStockDeltasParams) (int64, error)
	CreateInventoryAdjustment(ctx context.Context, arg database.CreateInventoryAdjustmentParams) (database.InventoryAdjustment, error)
}

// NewWorkflowStore creates a WorkflowStore from a DBTX (pool or tx).
type NewWorkflowStore func(db database.DBTX) WorkflowStore

// Actor identifies who is requesting a transition.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsCustomer reports whether the actor is a storefront customer rather than
// staff.
func (a Actor) IsCustomer() bool { return a.Role == enum.UserRoleCustomer }

// WorkflowService drives order status transitions. Each call runs one
// decide-then-apply inside a single transaction with the order row locked, so
// two concurrent transitions for the same order cannot both succeed on a
// stale status read.
type WorkflowService struct {
	pool        TxBeginner
	newStore    NewWorkflowStore
	operatorPIN string
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(pool TxBeginner, newStore NewWorkflowStore, operatorPIN string) *WorkflowService {
	return &WorkflowService{pool: pool, newStore: newStore, operatorPIN: operatorPIN}
}

// Transition moves the order to the given status if the workflow engine
// allows it. pin is only consulted for backward moves.
func (s *WorkflowService) Transition(ctx context.Context, orderID uuid.UUID, to workflow.Status, actor Actor, pin string) (database.Order, error) {
	return s.transition(ctx, orderID, to, actor, pin, nil)
}

// transitionGuard runs a policy check under the same row lock as the
// transition itself, so the status it decides against cannot go stale before
// the write.
type transitionGuard func(ctx context.Context, current workflow.Status, collab *txCollaborators) error

func (s *WorkflowService) transition(ctx context.Context, orderID uuid.UUID, to workflow.Status, actor Actor, pin string, guard transitionGuard) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	collab, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return database.Order{}, err
	}
	current, err := collab.FindStatus(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}

	if guard != nil {
		if err := guard(ctx, current, collab); err != nil {
			return database.Order{}, err
		}
	}

	// A COD order sitting at DELIVERED must have its payment explicitly
	// marked paid before completion, whichever endpoint takes the edge.
	if current == workflow.Delivered && to == workflow.Completed {
		info, err := collab.GetPaymentInfo(ctx, orderID)
		if err != nil {
			return database.Order{}, err
		}
		if info.Method == enum.PaymentMethodCOD && !info.IsPaid {
			return database.Order{}, ErrCODNotPaid
		}
	}

	engine := workflow.NewEngine(collab, collab, collab, s.operatorPIN)
	if err := engine.Transition(ctx, workflow.TransitionRequest{
		OrderID: orderID,
		To:      to,
		ActorID: actor.ID,
		PIN:     pin,
	}); err != nil {
		return database.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return collab.updated, nil
}

// Cancel applies the cancellation policy: only PENDING orders may be
// cancelled, by anyone, and a customer whose wallet payment already completed
// is redirected to the refund process instead.
func (s *WorkflowService) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	guard := func(ctx context.Context, current workflow.Status, collab *txCollaborators) error {
		if !workflow.CanCancel(current, actor.IsCustomer()) {
			return ErrCancelNotAllowed
		}
		if actor.IsCustomer() {
			info, err := collab.GetPaymentInfo(ctx, orderID)
			if err != nil {
				return err
			}
			if info.Method == enum.PaymentMethodWallet && info.IsPaid {
				return ErrRefundRequired
			}
		}
		return nil
	}
	return s.transition(ctx, orderID, workflow.Cancelled, actor, "", guard)
}

// Return moves a SHIPPING, DELIVERED, or COMPLETED order to RETURNED,
// restoring stock.
func (s *WorkflowService) Return(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	return s.Transition(ctx, orderID, workflow.Returned, actor, "")
}

// Confirm moves a PENDING order to CONFIRMED, deducting stock.
func (s *WorkflowService) Confirm(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	return s.Transition(ctx, orderID, workflow.Confirmed, actor, "")
}

// StartShipping moves a CONFIRMED order to SHIPPING.
func (s *WorkflowService) StartShipping(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	return s.Transition(ctx, orderID, workflow.Shipping, actor, "")
}

// Deliver moves a SHIPPING order to DELIVERED.
func (s *WorkflowService) Deliver(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	return s.Transition(ctx, orderID, workflow.Delivered, actor, "")
}

// Complete moves a DELIVERED order to COMPLETED. A COD order must have its
// payment explicitly marked paid first; wallet orders are already paid by the
// time they reach DELIVERED. The gate lives in the shared transition path, so
// the generic status endpoint cannot bypass it.
func (s *WorkflowService) Complete(ctx context.Context, orderID uuid.UUID, actor Actor) (database.Order, error) {
	return s.Transition(ctx, orderID, workflow.Completed, actor, "")
}

// PaymentInfo returns the dominant payment method and paid flag for an order.
func (s *WorkflowService) PaymentInfo(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error) {
	_, info, err := s.statusAndPayment(ctx, orderID)
	return info, err
}

// statusAndPayment reads the order's current status and payment context in a
// short transaction of its own. It serves read-only queries; transition
// policy decisions always re-read under the transition's row lock instead.
func (s *WorkflowService) statusAndPayment(ctx context.Context, orderID uuid.UUID) (workflow.Status, workflow.PaymentInfo, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return workflow.Status{}, workflow.PaymentInfo{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	collab, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return workflow.Status{}, workflow.PaymentInfo{}, err
	}
	current, err := collab.FindStatus(ctx, orderID)
	if err != nil {
		return workflow.Status{}, workflow.PaymentInfo{}, err
	}
	info, err := collab.GetPaymentInfo(ctx, orderID)
	if err != nil {
		return workflow.Status{}, workflow.PaymentInfo{}, err
	}
	return current, info, tx.Commit(ctx)
}

func (s *WorkflowService) lockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*txCollaborators, error) {
	store := s.newStore(tx)
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &txCollaborators{store: store, order: order}, nil
}

// txCollaborators adapts a transaction-scoped WorkflowStore to the engine's
// collaborator interfaces. It carries the locked order snapshot so the status
// the engine decides against is the one the row lock protects.
type txCollaborators struct {
	store   WorkflowStore
	order   database.Order
	updated database.Order
}

var _ workflow.OrderStore = (*txCollaborators)(nil)
var _ workflow.PaymentInfoProvider = (*txCollaborators)(nil)
var _ workflow.InventoryAdjuster = (*txCollaborators)(nil)

func (c *txCollaborators) FindStatus(ctx context.Context, orderID uuid.UUID) (workflow.Status, error) {
	status, ok := workflow.ByID(c.order.StatusID)
	if !ok {
		return workflow.Status{}, fmt.Errorf("%w: id %d", workflow.ErrUnknownStatus, c.order.StatusID)
	}
	return status, nil
}

func (c *txCollaborators) Lines(ctx context.Context, orderID uuid.UUID) ([]workflow.Line, error) {
	items, err := c.store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines := make([]workflow.Line, len(items))
	for i, it := range items {
		lines[i] = workflow.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines, nil
}

func (c *txCollaborators) WriteStatus(ctx context.Context, orderID uuid.UUID, from, to workflow.Status, actorID uuid.UUID) error {
	updated, err := c.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:             orderID,
		StatusID:       to.ID,
		ProcessedBy:    pgtype.UUID{Bytes: actorID, Valid: true},
		ExpectedStatus: from.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.ErrConcurrentModification
		}
		return err
	}
	c.updated = updated
	return nil
}

func (c *txCollaborators) GetPaymentInfo(ctx context.Context, orderID uuid.UUID) (workflow.PaymentInfo, error) {
	p, err := c.store.GetDominantPayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No payment recorded yet; fall back to the method chosen at
			// order creation.
			info := workflow.PaymentInfo{}
			if c.order.PaymentMethod.Valid {
				info.Method = c.order.PaymentMethod.String
			}
			return info, nil
		}
		return workflow.PaymentInfo{}, err
	}
	return workflow.PaymentInfo{
		Method: p.PaymentMethod,
		IsPaid: p.Status == enum.PaymentStatusCompleted,
	}, nil
}

func (c *txCollaborators) ApplyDeltas(ctx context.Context, deltas []workflow.StockDelta) error {
	// Aggregate per product: an UPDATE touches each row once, so duplicate
	// line items for the same product must be summed first.
	byProduct := make(map[uuid.UUID]int32, len(deltas))
	var ids []uuid.UUID
	for _, d := range deltas {
		if _, seen := byProduct[d.ProductID]; !seen {
			ids = append(ids, d.ProductID)
		}
		byProduct[d.ProductID] += d.Delta
	}

	// Lock the product rows and re-check stock before applying decrements.
	// The stock CHECK constraint is the backstop; this gives a typed error
	// naming the offending product.
	stocks, err := c.store.GetProductStocksForUpdate(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock product stocks: %w", err)
	}
	if len(stocks) < len(byProduct) {
		return fmt.Errorf("product missing during stock adjustment")
	}
	for _, ps := range stocks {
		if ps.Stock+byProduct[ps.ID] < 0 {
			return &workflow.InsufficientStockError{ProductID: ps.ID.String()}
		}
	}

	vals := make([]int32, len(ids))
	for i, id := range ids {
		vals[i] = byProduct[id]
	}
	affected, err := c.store.ApplyStockDeltas(ctx, database.ApplyStockDeltasParams{
		ProductIds: ids,
		Deltas:     vals,
	})
	if err != nil {
		return fmt.Errorf("apply stock deltas: %w", err)
	}
	if affected < int64(len(byProduct)) {
		return fmt.Errorf("product missing during stock adjustment")
	}
	return nil
}

func (c *txCollaborators) RecordAdjustment(ctx context.Context, productID uuid.UUID, delta int32, reason, note string, actorID uuid.UUID) error {
	noteText := pgtype.Text{}
	if note != "" {
		noteText = pgtype.Text{String: note, Valid: true}
	}
	_, err := c.store.CreateInventoryAdjustment(ctx, database.CreateInventoryAdjustmentParams{
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		Note:      noteText,
		CreatedBy: actorID,
	})
	return err
}
