package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleCustomer = "CUSTOMER"
	UserRoleAdmin    = "ADMIN"
	UserRoleShipper  = "SHIPPER"
)

const (
	PaymentMethodCOD    = "COD"
	PaymentMethodWallet = "WALLET"
)

const (
	AdjustmentReasonSale   = "SALE"
	AdjustmentReasonReturn = "RETURN"
)
