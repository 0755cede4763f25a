package workflow

import (
	"context"
	"fmt"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/google/uuid"
)

// Line is one order line item as the engine sees it.
type Line struct {
	ProductID uuid.UUID
	Quantity  int32
}

// StockDelta is a signed stock change for one product.
type StockDelta struct {
	ProductID uuid.UUID
	Delta     int32
}

// PaymentInfo is the dominant payment record of an order.
type PaymentInfo struct {
	Method string // enum.PaymentMethodCOD, enum.PaymentMethodWallet, or ""
	IsPaid bool
}

// OrderStore reads an order's current status and line items and persists the
// new status. WriteStatus must compare-and-swap on the expected current status
// and return ErrConcurrentModification when the read was stale.
type OrderStore interface {
	FindStatus(ctx context.Context, orderID uuid.UUID) (Status, error)
	Lines(ctx context.Context, orderID uuid.UUID) ([]Line, error)
	WriteStatus(ctx context.Context, orderID uuid.UUID, from, to Status, actorID uuid.UUID) error
}

// PaymentInfoProvider derives the dominant payment method and paid flag for an
// order.
type PaymentInfoProvider interface {
	GetPaymentInfo(ctx context.Context, orderID uuid.UUID) (PaymentInfo, error)
}

// InventoryAdjuster applies signed stock deltas and appends ledger entries.
// ApplyDeltas must be atomic per product row and must reject the whole batch
// with an InsufficientStockError if any decrement would drive stock negative.
type InventoryAdjuster interface {
	ApplyDeltas(ctx context.Context, deltas []StockDelta) error
	RecordAdjustment(ctx context.Context, productID uuid.UUID, delta int32, reason, note string, actorID uuid.UUID) error
}

// TransitionRequest asks the engine to move one order to a new status.
type TransitionRequest struct {
	OrderID uuid.UUID
	To      Status
	ActorID uuid.UUID
	// PIN authorizes backward moves. Ignored for forward edges.
	PIN string
}

// Engine decides whether a requested status change is legal and drives the
// side effects a legal change triggers. It holds no mutable state; a single
// Engine is safe for concurrent use. Collaborators are expected to be scoped
// to one transaction per Transition call so a rejected side effect rolls back
// cleanly.
type Engine struct {
	orders      OrderStore
	payments    PaymentInfoProvider
	inventory   InventoryAdjuster
	operatorPIN string
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(orders OrderStore, payments PaymentInfoProvider, inventory InventoryAdjuster, operatorPIN string) *Engine {
	return &Engine{
		orders:      orders,
		payments:    payments,
		inventory:   inventory,
		operatorPIN: operatorPIN,
	}
}

// Transition performs one atomic decide-then-apply. On any error the caller
// must not assume the new status took effect and should re-read before
// retrying; nothing is retried here.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) error {
	from, err := e.orders.FindStatus(ctx, req.OrderID)
	if err != nil {
		return fmt.Errorf("find status: %w", err)
	}

	pay, err := e.payments.GetPaymentInfo(ctx, req.OrderID)
	if err != nil {
		return fmt.Errorf("get payment info: %w", err)
	}

	if err := e.decide(from, req.To, pay, req.PIN); err != nil {
		return err
	}

	if err := e.applySideEffects(ctx, req, from); err != nil {
		return err
	}

	if err := e.orders.WriteStatus(ctx, req.OrderID, from, req.To, req.ActorID); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// decide is the pure legality check: forward table plus payment overlay, or
// the PIN-gated backward path.
func (e *Engine) decide(from, to Status, pay PaymentInfo, pin string) error {
	if IsBackwardMove(from, to) {
		return AuthorizeBackward(from, to, pin, e.operatorPIN)
	}

	if !hasForwardEdge(from, to) {
		return &InvalidTransitionError{From: from, To: to, Reason: forwardRejectReason(from, to)}
	}
	if walletGated(from, to) && pay.Method == enum.PaymentMethodWallet && !pay.IsPaid {
		return &PaymentNotConfirmedError{From: from, To: to}
	}
	return nil
}

func forwardRejectReason(from, to Status) string {
	switch {
	case from.IsTerminal():
		return "status is terminal"
	case to == Pending:
		return "cannot move back to PENDING"
	case to.SortOrder > from.SortOrder+1:
		return "would skip steps"
	default:
		return "no such transition"
	}
}

// applySideEffects runs the stock orchestration for edges that cross the
// stock-affecting boundary. Stock is deducted at confirmation, so only a
// cancellation from CONFIRMED restores it; cancelling from PENDING never
// deducted anything.
func (e *Engine) applySideEffects(ctx context.Context, req TransitionRequest, from Status) error {
	switch {
	case from == Pending && req.To == Confirmed:
		return e.adjustStock(ctx, req, -1, enum.AdjustmentReasonSale,
			fmt.Sprintf("order %s confirmed", req.OrderID))
	case from == Confirmed && req.To == Cancelled:
		return e.adjustStock(ctx, req, 1, enum.AdjustmentReasonReturn,
			fmt.Sprintf("order %s cancelled", req.OrderID))
	case req.To == Returned:
		return e.adjustStock(ctx, req, 1, enum.AdjustmentReasonReturn,
			fmt.Sprintf("order %s returned", req.OrderID))
	}
	return nil
}

// adjustStock applies sign*quantity per line as one batch, then appends one
// ledger entry per line. The batch either fully applies or fails as a whole.
func (e *Engine) adjustStock(ctx context.Context, req TransitionRequest, sign int32, reason, note string) error {
	lines, err := e.orders.Lines(ctx, req.OrderID)
	if err != nil {
		return fmt.Errorf("list lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	deltas := make([]StockDelta, len(lines))
	for i, l := range lines {
		deltas[i] = StockDelta{ProductID: l.ProductID, Delta: sign * l.Quantity}
	}
	if err := e.inventory.ApplyDeltas(ctx, deltas); err != nil {
		return err
	}

	for _, d := range deltas {
		if err := e.inventory.RecordAdjustment(ctx, d.ProductID, d.Delta, reason, note, req.ActorID); err != nil {
			return fmt.Errorf("record adjustment: %w", err)
		}
	}
	return nil
}
