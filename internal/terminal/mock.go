package terminal

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock is a deterministic, in-memory Terminal; cmd/saborposd wires it in as
// the daemon's terminal. By default every charge is approved; setting
// Behavior changes the outcome to exercise DECLINED/TIMEOUT/ERROR paths.
type Mock struct {
	mu       sync.Mutex
	Behavior func(amount decimal.Decimal, terminalID string) ChargeResult
	Refunds  []string
}

func NewMock() *Mock {
	return &Mock{
		Behavior: func(amount decimal.Decimal, terminalID string) ChargeResult {
			return ChargeResult{Outcome: OutcomeApproved, TransactionID: uuid.NewString()}
		},
	}
}

func (m *Mock) Charge(ctx context.Context, amount decimal.Decimal, terminalID string) (ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Behavior(amount, terminalID), nil
}

func (m *Mock) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refunds = append(m.Refunds, transactionID)
	return nil
}
