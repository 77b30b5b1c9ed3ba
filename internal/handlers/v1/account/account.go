package account

import (
	"time"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

// Account is the API response model for a canonical account.
type Account struct {
	ID            string `json:"id" doc:"Vendor account identifier"`
	Name          string `json:"name" doc:"Account display name"`
	Currency      string `json:"currency" doc:"ISO-4217 currency, XXX when unresolved"`
	Type          string `json:"type" doc:"Account type: depository, credit or loan"`
	InstitutionID string `json:"institutionId,omitempty" doc:"Institution the account belongs to"`
	Provider      string `json:"provider" doc:"Vendor the account came from"`

	Balance          string  `json:"balance" doc:"Decimal balance, positive = debt on credit accounts"`
	AvailableBalance *string `json:"availableBalance,omitempty" doc:"Decimal available balance"`
	CreditLimit      *string `json:"creditLimit,omitempty" doc:"Decimal credit limit"`

	ResourceID    string `json:"resourceId,omitempty" doc:"Vendor stable handle, used only for reconnection matching"`
	IBAN          string `json:"iban,omitempty" doc:"IBAN when the vendor supplies one"`
	BIC           string `json:"bic,omitempty" doc:"BIC when the vendor supplies one"`
	RoutingNumber string `json:"routingNumber,omitempty" doc:"US routing number when the vendor supplies one"`

	EnrollmentID string `json:"enrollmentId,omitempty" doc:"Vendor consent grant the account belongs to"`
	ExpiresAt    string `json:"expiresAt,omitempty" format:"date-time" doc:"Consent expiry when the vendor enforces one"`
}

func fromCanonical(acc banking.Account) Account {
	out := Account{
		ID:            acc.ID,
		Name:          acc.Name,
		Currency:      acc.Currency,
		Type:          string(acc.Type),
		InstitutionID: acc.InstitutionID,
		Provider:      string(acc.Provider),
		Balance:       acc.Balance.String(),
		ResourceID:    acc.ResourceID,
		IBAN:          acc.IBAN,
		BIC:           acc.BIC,
		RoutingNumber: acc.RoutingNumber,
		EnrollmentID:  acc.EnrollmentID,
	}
	if acc.AvailableBalance != nil {
		available := acc.AvailableBalance.String()
		out.AvailableBalance = &available
	}
	if acc.CreditLimit != nil {
		limit := acc.CreditLimit.String()
		out.CreditLimit = &limit
	}
	if acc.ExpiresAt != nil {
		out.ExpiresAt = acc.ExpiresAt.Format(time.RFC3339)
	}
	return out
}
