package transaction

import (
	"time"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

// Transaction is the API response model for a canonical transaction.
// It is used only for responses, not for request bodies.
type Transaction struct {
	ID             string  `json:"id" doc:"Stable deduplication identifier"`
	Amount         string  `json:"amount" doc:"Signed decimal amount, positive = inflow"`
	Currency       string  `json:"currency" doc:"ISO-4217 currency, XXX when unresolved"`
	Date           string  `json:"date" format:"date-time" doc:"Booking date"`
	Status         string  `json:"status" doc:"posted or pending"`
	RunningBalance *string `json:"runningBalance,omitempty" doc:"Decimal balance after this transaction, when the vendor reports it"`
	Category       string  `json:"category,omitempty" doc:"Heuristic or vendor category"`
	Counterparty   string  `json:"counterparty,omitempty" doc:"Merchant or counterparty name"`
	Method         string  `json:"method,omitempty" doc:"payment, transfer, card_purchase or other"`
	Description    string  `json:"description,omitempty" doc:"Vendor description line"`
}

func fromCanonical(tx banking.Transaction) Transaction {
	out := Transaction{
		ID:           tx.ID,
		Amount:       tx.Amount.String(),
		Currency:     tx.Currency,
		Date:         tx.Date.Format(time.RFC3339),
		Status:       string(tx.Status),
		Category:     tx.Category,
		Counterparty: tx.Counterparty,
		Method:       string(tx.Method),
		Description:  tx.Description,
	}
	if tx.RunningBalance != nil {
		running := tx.RunningBalance.String()
		out.RunningBalance = &running
	}
	return out
}
