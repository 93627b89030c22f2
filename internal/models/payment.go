package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusCreated = "created"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment tracks a wallet recharge through the payment gateway
type Payment struct {
	ID               uuid.UUID
	Owner            OwnerRef
	Amount           decimal.Decimal
	Currency         Currency
	GatewayOrderID   string
	GatewayPaymentID string // empty until paid
	GatewaySignature string // empty if settled without client verification
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
