package banking

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies one of the supported bank-data vendors.
type Provider string

const (
	ProviderPlaid         Provider = "plaid"
	ProviderTeller        Provider = "teller"
	ProviderGoCardless    Provider = "gocardless"
	ProviderEnableBanking Provider = "enablebanking"
)

// Providers lists every supported vendor in dispatch order.
func Providers() []Provider {
	return []Provider{ProviderPlaid, ProviderTeller, ProviderGoCardless, ProviderEnableBanking}
}

// CurrencyUnset is the ISO-4217 placeholder for "no currency supplied".
// It survives normalization only when every candidate source is equally
// unresolved.
const CurrencyUnset = "XXX"

// AccountType classifies an account in the canonical model.
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeLoan       AccountType = "loan"
)

// TransactionStatus marks whether a transaction has settled.
type TransactionStatus string

const (
	TransactionPosted  TransactionStatus = "posted"
	TransactionPending TransactionStatus = "pending"
)

// TransactionMethod is a coarse classification of how money moved.
type TransactionMethod string

const (
	MethodPayment  TransactionMethod = "payment"
	MethodTransfer TransactionMethod = "transfer"
	MethodCard     TransactionMethod = "card_purchase"
	MethodOther    TransactionMethod = "other"
)

// Account is the canonical representation of one bank account.
//
// ResourceID is a vendor-supplied stable handle used only to assist
// reconnection matching. It is never a primary key.
type Account struct {
	ID            string
	Name          string
	Currency      string
	Type          AccountType
	InstitutionID string
	Provider      Provider

	Balance          decimal.Decimal
	AvailableBalance *decimal.Decimal
	CreditLimit      *decimal.Decimal

	ResourceID    string
	IBAN          string
	BIC           string
	RoutingNumber string

	// EnrollmentID ties the account back to the vendor consent grant
	// (requisition, enrollment or session, depending on the vendor).
	EnrollmentID string

	// ExpiresAt is set when the vendor enforces a consent TTL.
	ExpiresAt *time.Time
}

// Balance is a point-in-time amount attached to an account at fetch time.
// It is never persisted independently of the account snapshot.
type Balance struct {
	Amount    decimal.Decimal
	Currency  string
	Available *decimal.Decimal
	Limit     *decimal.Decimal
}

// Transaction is the canonical transaction shape. Amount is signed after
// vendor normalization: positive = inflow, negative = outflow.
//
// ID is the deduplication key used by the persistence layer, so it must be
// stable across repeated fetches of the same underlying vendor event.
type Transaction struct {
	ID             string
	Amount         decimal.Decimal
	Currency       string
	Date           time.Time
	Status         TransactionStatus
	RunningBalance *decimal.Decimal
	Category       string
	Counterparty   string
	Method         TransactionMethod
	Description    string
}

// Institution is vendor-agnostic institution metadata. Directory entries
// are replaced wholesale on refresh, never mutated in place.
type Institution struct {
	ID       string
	Name     string
	Logo     string
	Provider Provider
	Country  string
}

// ConnectionState reports whether a consent grant is still usable.
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

// ConnectionStatus is recomputed on demand from vendor session state.
type ConnectionStatus struct {
	Status ConnectionState
}

// ResolveCurrency picks the first resolved ISO code among candidates,
// falling back to the placeholder only when every candidate is unresolved.
func ResolveCurrency(candidates ...string) string {
	for _, c := range candidates {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" && c != CurrencyUnset {
			return c
		}
	}
	return CurrencyUnset
}

// CurrencyResolved reports whether code is a usable ISO-4217 value.
func CurrencyResolved(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code != "" && code != CurrencyUnset
}

// NormalizeCreditBalance maps a vendor-reported credit balance to the
// canonical "positive = debt" convention. Vendors that report the amount
// owed as a negative number get flipped; positive magnitudes pass through
// unchanged. Non-credit accounts are never touched.
func NormalizeCreditBalance(accountType AccountType, amount decimal.Decimal) decimal.Decimal {
	if accountType != AccountTypeCredit {
		return amount
	}
	if amount.IsNegative() {
		return amount.Neg()
	}
	return amount
}

// Categorize applies the rule-based category heuristic shared by every
// adapter: inflows on a credit account are card payments, inflows on a
// depository account are income. Outflows keep the vendor category, which
// the adapter passes through fallback.
func Categorize(accountType AccountType, amount decimal.Decimal, fallback string) string {
	if amount.IsPositive() {
		if accountType == AccountTypeCredit {
			return "credit_card_payment"
		}
		return "income"
	}
	return fallback
}
