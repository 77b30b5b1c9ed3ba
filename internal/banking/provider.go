package banking

import "context"

// AccountsRequest identifies a consent grant at one vendor. Ref is
// vendor-specific: a Plaid access token, a Teller access token, a
// GoCardless requisition id, or an EnableBanking session id.
type AccountsRequest struct {
	Ref string
}

// TransactionsRequest asks one adapter for an account's transactions.
// Latest requests a narrow low-latency window instead of full history.
type TransactionsRequest struct {
	AccountID   string
	AccountType AccountType
	Latest      bool
	AccessToken string
}

// BalanceRequest asks one adapter for an account's current balance.
type BalanceRequest struct {
	AccountID   string
	AccountType AccountType
	AccessToken string
}

// InstitutionsRequest filters the vendor institution list.
type InstitutionsRequest struct {
	CountryCode string
}

// Adapter is implemented once per vendor. Each implementation owns its
// HTTP client, authentication scheme and response parsing, and returns
// only canonical shapes.
type Adapter interface {
	Provider() Provider

	GetAccounts(ctx context.Context, req AccountsRequest) ([]Account, error)
	GetTransactions(ctx context.Context, req TransactionsRequest) ([]Transaction, error)
	GetAccountBalance(ctx context.Context, req BalanceRequest) (*Balance, error)
	GetInstitutions(ctx context.Context, req InstitutionsRequest) ([]Institution, error)
	GetConnectionStatus(ctx context.Context, ref string) (ConnectionStatus, error)

	// DeleteConnection and DeleteAccounts are best-effort revocation at
	// the vendor.
	DeleteConnection(ctx context.Context, ref string) error
	DeleteAccounts(ctx context.Context, ref string) error

	HealthCheck(ctx context.Context) error
}
