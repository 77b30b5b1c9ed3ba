package account

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

type mockBalanceReader struct {
	mock.Mock
}

func (m *mockBalanceReader) GetAccountBalance(ctx context.Context, tag banking.Provider, req banking.BalanceRequest) (*banking.Balance, error) {
	args := m.Called(ctx, tag, req)
	balance, _ := args.Get(0).(*banking.Balance)
	return balance, args.Error(1)
}

func newBalanceTestAPI(t *testing.T, facade balanceReader) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	NewGetBalanceHandler(facade).Register(api)
	return api
}

func TestHTTP_GetBalance_ResolvedBalance(t *testing.T) {
	available := decimal.RequireFromString("420.00")

	mockFacade := new(mockBalanceReader)
	mockFacade.On("GetAccountBalance", mock.Anything, banking.ProviderPlaid, mock.MatchedBy(func(req banking.BalanceRequest) bool {
		return req.AccountID == "acc-1" && req.AccountType == banking.AccountTypeCredit
	})).Return(&banking.Balance{
		Amount:    decimal.RequireFromString("321.50"),
		Currency:  "USD",
		Available: &available,
	}, nil)

	resp := newBalanceTestAPI(t, mockFacade).Post("/v1/account/balance", GetBalanceBody{
		Provider:    "plaid",
		AccountID:   "acc-1",
		AccountType: "credit",
		AccessToken: "token-1",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var body GetBalanceResponseBody
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	if assert.NotNil(t, body.Balance) {
		assert.Equal(t, "321.5", body.Balance.Amount)
		assert.Equal(t, "USD", body.Balance.Currency)
		if assert.NotNil(t, body.Balance.Available) {
			assert.Equal(t, "420", *body.Balance.Available)
		}
	}
	mockFacade.AssertExpectations(t)
}

func TestHTTP_GetBalance_NullWhenVendorReportsNone(t *testing.T) {
	mockFacade := new(mockBalanceReader)
	mockFacade.On("GetAccountBalance", mock.Anything, mock.Anything, mock.Anything).
		Return((*banking.Balance)(nil), nil)

	resp := newBalanceTestAPI(t, mockFacade).Post("/v1/account/balance", GetBalanceBody{
		Provider:  "enablebanking",
		AccountID: "uid-1",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var body GetBalanceResponseBody
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Nil(t, body.Balance)
	mockFacade.AssertExpectations(t)
}

func TestHTTP_GetBalance_RateLimited(t *testing.T) {
	mockFacade := new(mockBalanceReader)
	mockFacade.On("GetAccountBalance", mock.Anything, mock.Anything, mock.Anything).
		Return((*banking.Balance)(nil), banking.NewError(banking.ProviderGoCardless, banking.ErrCodeRateLimited, "", "rate limit exhausted"))

	resp := newBalanceTestAPI(t, mockFacade).Post("/v1/account/balance", GetBalanceBody{
		Provider:  "gocardless",
		AccountID: "acc-1",
	})

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	mockFacade.AssertExpectations(t)
}
