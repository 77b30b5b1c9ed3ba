package account

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// ListAccountsBody is the request body for listing the accounts behind
// one consent grant. Ref is vendor-specific: an access token for Plaid
// and Teller, a requisition id for GoCardless, a session id for
// EnableBanking. It is a secret and is never echoed back.
type ListAccountsBody struct {
	Provider string `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor to query"`
	Ref      string `json:"ref" minLength:"1" doc:"Vendor consent reference"`
}

// ListAccountsInput is the Huma input for listing accounts.
type ListAccountsInput struct {
	Body ListAccountsBody
}

// ListAccountsResponseBody is the response body for listing accounts.
type ListAccountsResponseBody struct {
	Accounts []Account `json:"accounts" doc:"Canonical accounts behind the grant"`
}

// ListAccountsOutput is the Huma output for listing accounts.
type ListAccountsOutput struct {
	Body ListAccountsResponseBody
}

// accountLister is the interface for fetching accounts from a vendor.
type accountLister interface {
	GetAccounts(ctx context.Context, tag banking.Provider, req banking.AccountsRequest) ([]banking.Account, error)
}

// ListAccountsHandler handles POST /v1/account/list.
type ListAccountsHandler struct {
	Facade accountLister
}

// NewListAccountsHandler creates a new ListAccountsHandler.
func NewListAccountsHandler(facade accountLister) *ListAccountsHandler {
	return &ListAccountsHandler{Facade: facade}
}

// Register registers the list accounts endpoint with the Huma API.
func (h *ListAccountsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodPost,
		Path:        "/v1/account/list",
		Summary:     "List accounts",
		Description: "Fetches the canonical accounts behind one vendor consent grant.",
		Tags:        []string{"Accounts"},
	}, h.handle)
}

func (h *ListAccountsHandler) handle(ctx context.Context, input *ListAccountsInput) (*ListAccountsOutput, error) {
	logData := logging.GetLogData(ctx)

	var stopTimer func()
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
		stopTimer = logData.AddTiming("listAccountsMs")
	}
	accounts, err := h.Facade.GetAccounts(ctx, banking.Provider(input.Body.Provider), banking.AccountsRequest{
		Ref: input.Body.Ref,
	})
	if stopTimer != nil {
		stopTimer()
	}
	if err != nil {
		return nil, providerError(err)
	}

	if logData != nil {
		logData.AddData("accountCount", len(accounts))
	}

	resp := ListAccountsResponseBody{
		Accounts: make([]Account, len(accounts)),
	}
	for i, acc := range accounts {
		resp.Accounts[i] = fromCanonical(acc)
	}

	return &ListAccountsOutput{Body: resp}, nil
}

// providerError maps the provider error taxonomy onto HTTP statuses:
// a disconnected grant is the caller's problem, a rate limit is
// retryable, everything else is a gateway failure.
func providerError(err error) error {
	switch banking.CodeOf(err) {
	case banking.ErrCodeDisconnected:
		return huma.NewError(http.StatusUnauthorized, "connection requires re-authorization", err)
	case banking.ErrCodeRateLimited:
		return huma.NewError(http.StatusTooManyRequests, "vendor rate limit exceeded", err)
	default:
		return huma.NewError(http.StatusBadGateway, "vendor request failed", err)
	}
}
