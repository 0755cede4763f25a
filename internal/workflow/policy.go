package workflow

import "github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"

// forwardEdges defines the canonical forward transitions. Key is the current
// status, value is the set of statuses it can move to without elevated
// authorization. No other forward edge exists; skipping steps is always
// rejected, even for admins.
var forwardEdges = map[Status][]Status{
	Pending:   {Confirmed, Cancelled},
	Confirmed: {Shipping, Cancelled},
	Shipping:  {Delivered, Returned},
	Delivered: {Returned, Completed},
	Completed: {Returned},
}

func hasForwardEdge(from, to Status) bool {
	for _, s := range forwardEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// walletGated reports whether the edge requires a completed wallet payment.
// Only PENDING→CONFIRMED and CONFIRMED→SHIPPING are payment-sensitive; COD and
// unset payment methods pass unconditionally.
func walletGated(from, to Status) bool {
	return (from == Pending && to == Confirmed) || (from == Confirmed && to == Shipping)
}

// IsValidTransition reports whether the forward edge from→to is legal for the
// given payment context. Backward moves are not covered here; they go through
// AuthorizeBackward.
func IsValidTransition(from, to Status, paymentMethod string, isPaid bool) bool {
	if !hasForwardEdge(from, to) {
		return false
	}
	if walletGated(from, to) && paymentMethod == enum.PaymentMethodWallet && !isPaid {
		return false
	}
	return true
}

// CanCancel reports whether an order in the given status may be cancelled.
// Only PENDING orders can be cancelled; once confirmed, the only way off is
// the normal forward flow or an admin return. The rule is the same for
// customers and admins. Whether a customer with a completed wallet payment
// must instead go through the refund process is checked by the caller against
// payment records, not here.
func CanCancel(status Status, isCustomer bool) bool {
	_ = isCustomer
	return status == Pending
}

// CanReturn reports whether a return may be initiated from the given status.
// Derived from the transition table's →RETURNED edges so the two can never
// disagree.
func CanReturn(status Status) bool {
	return hasForwardEdge(status, Returned)
}

// CanConfirm reports whether a PENDING order may be confirmed under the given
// payment context. False for any other current status.
func CanConfirm(status Status, paymentMethod string, isPaid bool) bool {
	return status == Pending && IsValidTransition(Pending, Confirmed, paymentMethod, isPaid)
}

// CanStartShipping reports whether a CONFIRMED order may start shipping under
// the given payment context. False for any other current status.
func CanStartShipping(status Status, paymentMethod string, isPaid bool) bool {
	return status == Confirmed && IsValidTransition(Confirmed, Shipping, paymentMethod, isPaid)
}

// IsBackwardMove reports whether from→to is a backward move: the target's ID
// is lower than the current one, excluding moves into CANCELLED or RETURNED,
// which the forward table owns.
func IsBackwardMove(from, to Status) bool {
	return to.ID < from.ID && to != Cancelled && to != Returned
}

// AuthorizeBackward decides a PIN-gated backward move. Moving back to PENDING
// is never allowed, nor is moving out of a terminal status, regardless of PIN.
// Any other backward move with the correct operator PIN succeeds; no stock
// side effect is defined for this path.
func AuthorizeBackward(from, to Status, pin, operatorPIN string) error {
	if from.IsTerminal() {
		return &InvalidTransitionError{From: from, To: to, Reason: "status is terminal"}
	}
	if to == Pending {
		return &InvalidTransitionError{From: from, To: to, Reason: "cannot move back to PENDING"}
	}
	if !IsBackwardMove(from, to) {
		return &InvalidTransitionError{From: from, To: to, Reason: "not a backward move"}
	}
	if pin == "" || pin != operatorPIN {
		return ErrUnauthorizedBackward
	}
	return nil
}
