package account

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// GetBalanceBody is the request body for fetching one account's balance.
type GetBalanceBody struct {
	Provider    string `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor to query"`
	AccountID   string `json:"accountId" minLength:"1" doc:"Vendor account identifier"`
	AccountType string `json:"accountType,omitempty" enum:"depository,credit,loan" doc:"Account type, used to apply the credit sign convention"`
	AccessToken string `json:"accessToken,omitempty" doc:"Vendor access token when the vendor scopes balance reads per grant"`
}

// GetBalanceInput is the Huma input for fetching a balance.
type GetBalanceInput struct {
	Body GetBalanceBody
}

// GetBalanceResponseBody is the response body for fetching a balance.
// Balance is null when the vendor legitimately reports no balance.
type GetBalanceResponseBody struct {
	Balance *BalanceModel `json:"balance" doc:"Resolved balance, null when the vendor reports none"`
}

// BalanceModel is the API response model for a resolved balance.
type BalanceModel struct {
	Amount    string  `json:"amount" doc:"Decimal amount, positive = debt on credit accounts"`
	Currency  string  `json:"currency" doc:"ISO-4217 currency, XXX when unresolved"`
	Available *string `json:"available,omitempty" doc:"Decimal available amount"`
	Limit     *string `json:"limit,omitempty" doc:"Decimal credit limit"`
}

// GetBalanceOutput is the Huma output for fetching a balance.
type GetBalanceOutput struct {
	Body GetBalanceResponseBody
}

// balanceReader is the interface for fetching one account's balance.
type balanceReader interface {
	GetAccountBalance(ctx context.Context, tag banking.Provider, req banking.BalanceRequest) (*banking.Balance, error)
}

// GetBalanceHandler handles POST /v1/account/balance.
type GetBalanceHandler struct {
	Facade balanceReader
}

// NewGetBalanceHandler creates a new GetBalanceHandler.
func NewGetBalanceHandler(facade balanceReader) *GetBalanceHandler {
	return &GetBalanceHandler{Facade: facade}
}

// Register registers the balance endpoint with the Huma API.
func (h *GetBalanceHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-balance",
		Method:      http.MethodPost,
		Path:        "/v1/account/balance",
		Summary:     "Get account balance",
		Description: "Fetches the resolved current balance for one account.",
		Tags:        []string{"Accounts"},
	}, h.handle)
}

func (h *GetBalanceHandler) handle(ctx context.Context, input *GetBalanceInput) (*GetBalanceOutput, error) {
	logData := logging.GetLogData(ctx)

	var stopTimer func()
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
		stopTimer = logData.AddTiming("getBalanceMs")
	}
	balance, err := h.Facade.GetAccountBalance(ctx, banking.Provider(input.Body.Provider), banking.BalanceRequest{
		AccountID:   input.Body.AccountID,
		AccountType: banking.AccountType(input.Body.AccountType),
		AccessToken: input.Body.AccessToken,
	})
	if stopTimer != nil {
		stopTimer()
	}
	if err != nil {
		return nil, providerError(err)
	}

	resp := GetBalanceResponseBody{}
	if balance != nil {
		model := BalanceModel{
			Amount:   balance.Amount.String(),
			Currency: balance.Currency,
		}
		if balance.Available != nil {
			available := balance.Available.String()
			model.Available = &available
		}
		if balance.Limit != nil {
			limit := balance.Limit.String()
			model.Limit = &limit
		}
		resp.Balance = &model
	}

	return &GetBalanceOutput{Body: resp}, nil
}
