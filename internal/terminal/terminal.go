// Package terminal defines the payment-terminal collaborator interface
// billing depends on, plus an in-memory mock implementation.
package terminal

import (
	"context"

	"github.com/shopspring/decimal"
)

// Outcome is the result of a terminal charge attempt.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeDeclined Outcome = "DECLINED"
	OutcomeTimeout  Outcome = "TIMEOUT"
	OutcomeError    Outcome = "ERROR"
)

// ChargeResult is returned by Charge.
type ChargeResult struct {
	Outcome       Outcome
	TransactionID string
	Reason        string
}

// Terminal is the external card/mobile payment processor collaborator.
type Terminal interface {
	Charge(ctx context.Context, amount decimal.Decimal, terminalID string) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}
