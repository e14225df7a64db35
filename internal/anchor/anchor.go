package anchor

import (
	"context"

	"github.com/google/uuid"
)

// Transaction is the unit shipped to an anchoring backend. The four
// category maps mirror the audit taxonomy: arrangement for structural
// lifecycle, accrual for cryptographic state, anticipation for
// refusals and alarms, action for viewer-facing operations. Only
// hashes, counts, and identifiers belong here; never content.
type Transaction struct {
	TransactionID   string                 `json:"transaction_id"`
	TransactionType string                 `json:"transaction_type"`
	Arrangement     map[string]interface{} `json:"arrangement,omitempty"`
	Accrual         map[string]interface{} `json:"accrual,omitempty"`
	Anticipation    map[string]interface{} `json:"anticipation,omitempty"`
	Action          map[string]interface{} `json:"action,omitempty"`
}

// Receipt identifies an accepted transaction on the anchoring side.
type Receipt struct {
	ForwardTxID  string `json:"forward_tx_id"`
	ExternalTxID string `json:"external_tx_id"`
}

// Sink submits transactions to one anchoring backend. Submit is
// expected to be idempotent per TransactionID; the retry worker may
// deliver the same transaction more than once.
type Sink interface {
	Name() string
	Submit(ctx context.Context, tx *Transaction) (*Receipt, error)
}

// NewTransaction allocates a transaction with a fresh identifier.
func NewTransaction(transactionType string) *Transaction {
	return &Transaction{
		TransactionID:   uuid.New().String(),
		TransactionType: transactionType,
	}
}
