package transaction

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// ListTransactionsBody is the request body for listing one account's
// transactions. Latest requests the narrow low-latency window instead of
// full history.
type ListTransactionsBody struct {
	Provider    string `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor to query"`
	AccountID   string `json:"accountId" minLength:"1" doc:"Vendor account identifier"`
	AccountType string `json:"accountType,omitempty" enum:"depository,credit,loan" doc:"Account type, drives sign and category normalization"`
	Latest      bool   `json:"latest,omitempty" doc:"Fetch only the recent window instead of full history"`
	AccessToken string `json:"accessToken,omitempty" doc:"Vendor access token when the vendor scopes reads per grant"`
}

// ListTransactionsInput is the Huma input for listing transactions.
type ListTransactionsInput struct {
	Body ListTransactionsBody
}

// ListTransactionsResponseBody is the response body for listing transactions.
type ListTransactionsResponseBody struct {
	Transactions []Transaction `json:"transactions" doc:"Canonical transactions, newest first as the vendor returns them"`
}

// ListTransactionsOutput is the Huma output for listing transactions.
type ListTransactionsOutput struct {
	Body ListTransactionsResponseBody
}

// transactionLister is the interface for fetching transactions from a vendor.
type transactionLister interface {
	GetTransactions(ctx context.Context, tag banking.Provider, req banking.TransactionsRequest) ([]banking.Transaction, error)
}

// ListTransactionsHandler handles POST /v1/transaction/list.
type ListTransactionsHandler struct {
	Facade transactionLister
}

// NewListTransactionsHandler creates a new ListTransactionsHandler.
func NewListTransactionsHandler(facade transactionLister) *ListTransactionsHandler {
	return &ListTransactionsHandler{Facade: facade}
}

// Register registers the list transactions endpoint with the Huma API.
func (h *ListTransactionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodPost,
		Path:        "/v1/transaction/list",
		Summary:     "List transactions",
		Description: "Fetches canonical transactions for one account, full history or the recent window.",
		Tags:        []string{"Transactions"},
	}, h.handle)
}

func (h *ListTransactionsHandler) handle(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	logData := logging.GetLogData(ctx)

	var stopTimer func()
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
		logData.AddData("latest", input.Body.Latest)
		stopTimer = logData.AddTiming("listTransactionsMs")
	}
	transactions, err := h.Facade.GetTransactions(ctx, banking.Provider(input.Body.Provider), banking.TransactionsRequest{
		AccountID:   input.Body.AccountID,
		AccountType: banking.AccountType(input.Body.AccountType),
		Latest:      input.Body.Latest,
		AccessToken: input.Body.AccessToken,
	})
	if stopTimer != nil {
		stopTimer()
	}
	if err != nil {
		return nil, providerError(err)
	}

	if logData != nil {
		logData.AddData("transactionCount", len(transactions))
	}

	resp := ListTransactionsResponseBody{
		Transactions: make([]Transaction, len(transactions)),
	}
	for i, tx := range transactions {
		resp.Transactions[i] = fromCanonical(tx)
	}

	return &ListTransactionsOutput{Body: resp}, nil
}

// providerError maps the provider error taxonomy onto HTTP statuses.
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
