package eventbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderConfirmed          = "OrderConfirmed"
	EventOrderLineVoided         = "OrderLineVoided"
	EventPaymentCompleted        = "PaymentCompleted"
	EventFiscalDocumentGenerated = "FiscalDocumentGenerated"
)

// ConfirmedLine is one line captured into an OrderConfirmed event.
type ConfirmedLine struct {
	LineID   uuid.UUID
	ItemID   uuid.UUID
	ItemName string
	Quantity int
	Notes    string
	Zone     string
}

// OrderConfirmed is published once an order's PENDING lines become
// CONFIRMED ("Pedir").
type OrderConfirmed struct {
	OrderID     uuid.UUID
	TenantID    uuid.UUID
	SiteID      uuid.UUID
	TableNumber string
	Lines       []ConfirmedLine
	ConfirmedAt time.Time
	ConfirmationOrdinal int
}

// OrderLineVoided is published when a CONFIRMED or PENDING line is voided.
type OrderLineVoided struct {
	LineID   uuid.UUID
	OrderID  uuid.UUID
	TenantID uuid.UUID
	Reason   string
	When     time.Time
}

// PaymentCompleted is published after a payment transitions to COMPLETED.
type PaymentCompleted struct {
	PaymentID uuid.UUID
	OrderID   uuid.UUID
	TenantID  uuid.UUID
	SiteID    uuid.UUID
	Amount    decimal.Decimal
	Method    string
	When      time.Time
}

// FiscalDocumentGenerated is published after a fiscal document is assigned
// its gap-free number.
type FiscalDocumentGenerated struct {
	DocumentID uuid.UUID
	TenantID   uuid.UUID
	SiteID     uuid.UUID
	Type       string
	Number     int
	When       time.Time
}
