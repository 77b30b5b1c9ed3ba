package plaid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{ClientID: "client-1", Secret: "secret-1", BaseURL: server.URL}, logrus.New(), nil)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestGetAccounts_CredentialsInBody(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/get", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "client-1", body["client_id"])
		assert.Equal(t, "secret-1", body["secret"])
		assert.Equal(t, "access-token-1", body["access_token"])

		w.Write([]byte(`{
			"accounts": [{
				"account_id": "acc-1",
				"name": "Plaid Credit Card",
				"mask": "4444",
				"type": "credit",
				"balances": {"current": 410.25, "limit": 2000, "iso_currency_code": "USD"}
			}],
			"item": {"item_id": "item-1", "institution_id": "ins_3"}
		}`))
	}))

	accounts, err := adapter.GetAccounts(context.Background(), banking.AccountsRequest{Ref: "access-token-1"})
	assert.NoError(t, err)
	assert.Len(t, accounts, 1)

	acc := accounts[0]
	assert.Equal(t, banking.AccountTypeCredit, acc.Type)
	assert.Equal(t, "ins_3", acc.InstitutionID)
	assert.Equal(t, "item-1", acc.EnrollmentID)
	assert.Equal(t, "4444", acc.ResourceID)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("410.25")))
	assert.NotNil(t, acc.CreditLimit)
	assert.True(t, acc.CreditLimit.Equal(decimal.RequireFromString("2000")))
}

func TestGetTransactions_SyncDrainAndSignInversion(t *testing.T) {
	var cursors []string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/sync", r.URL.Path)
		body := decodeBody(t, r)
		cursor, _ := body["cursor"].(string)
		cursors = append(cursors, cursor)

		if cursor == "" {
			w.Write([]byte(`{
				"added": [{
					"transaction_id": "tx-1",
					"account_id": "acc-1",
					"amount": 12.50,
					"iso_currency_code": "USD",
					"date": "2026-04-01",
					"name": "CORNER CAFE",
					"merchant_name": "Corner Cafe",
					"payment_channel": "in store",
					"personal_finance_category": {"primary": "FOOD_AND_DRINK"}
				}],
				"modified": [],
				"next_cursor": "cursor-2",
				"has_more": true
			}`))
			return
		}
		w.Write([]byte(`{
			"added": [{
				"transaction_id": "tx-2",
				"account_id": "acc-other",
				"amount": 99.00,
				"iso_currency_code": "USD",
				"date": "2026-04-01",
				"name": "OTHER ACCOUNT"
			}],
			"modified": [{
				"transaction_id": "tx-3",
				"account_id": "acc-1",
				"amount": -1500.00,
				"iso_currency_code": "USD",
				"date": "2026-04-02",
				"name": "PAYROLL",
				"pending": true
			}],
			"next_cursor": "cursor-3",
			"has_more": false
		}`))
	}))

	transactions, err := adapter.GetTransactions(context.Background(), banking.TransactionsRequest{
		AccountID:   "acc-1",
		AccountType: banking.AccountTypeDepository,
		AccessToken: "access-token-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"", "cursor-2"}, cursors)

	// tx-2 belongs to another account and is dropped after the drain.
	assert.Len(t, transactions, 2)

	// Plaid positive means outflow; canonical positive means inflow.
	assert.True(t, transactions[0].Amount.Equal(decimal.RequireFromString("-12.50")))
	assert.Equal(t, banking.MethodCard, transactions[0].Method)
	assert.Equal(t, "Corner Cafe", transactions[0].Counterparty)
	assert.Equal(t, "food_and_drink", transactions[0].Category)

	assert.True(t, transactions[1].Amount.Equal(decimal.RequireFromString("1500.00")))
	assert.Equal(t, banking.TransactionPending, transactions[1].Status)
	assert.Equal(t, "income", transactions[1].Category)
}

func TestGetTransactions_LatestTrimsOldDates(t *testing.T) {
	old := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	recent := time.Now().AddDate(0, 0, -1).Format("2006-01-02")

	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"added": [
				{"transaction_id": "tx-old", "account_id": "acc-1", "amount": 5, "date": %q, "name": "OLD"},
				{"transaction_id": "tx-new", "account_id": "acc-1", "amount": 5, "date": %q, "name": "NEW"}
			],
			"modified": [],
			"next_cursor": "end",
			"has_more": false
		}`, old, recent)
	}))

	transactions, err := adapter.GetTransactions(context.Background(), banking.TransactionsRequest{
		AccountID:   "acc-1",
		AccountType: banking.AccountTypeDepository,
		Latest:      true,
		AccessToken: "token",
	})
	assert.NoError(t, err)
	assert.Len(t, transactions, 1)
	assert.Equal(t, "tx-new", transactions[0].ID)
}

func TestTranslateError_LoginRequiredIsDisconnected(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_type": "ITEM_ERROR", "error_code": "ITEM_LOGIN_REQUIRED", "error_message": "the login details of this item have changed"}`))
	}))

	_, err := adapter.GetAccounts(context.Background(), banking.AccountsRequest{Ref: "token"})
	assert.True(t, banking.IsDisconnected(err))
}

func TestTranslateError_RateLimitRetriedToCeiling(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error_type": "RATE_LIMIT_EXCEEDED", "error_code": "TRANSACTIONS_LIMIT", "error_message": "too many requests"}`))
	}))

	_, err := adapter.GetAccounts(context.Background(), banking.AccountsRequest{Ref: "token"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, banking.ErrCodeRateLimited, banking.CodeOf(err))
}

func TestGetInstitutions_OffsetDrain(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		offset := int(body["offset"].(float64))

		options, _ := body["options"].(map[string]any)
		assert.Equal(t, true, options["include_optional_metadata"])

		if offset == 0 {
			w.Write([]byte(`{
				"institutions": [{"institution_id": "ins_1", "name": "First Platypus Bank", "logo": "aWNvbg==", "country_codes": ["US"]}],
				"total": 2
			}`))
			return
		}
		w.Write([]byte(`{
			"institutions": [{"institution_id": "ins_2", "name": "Second Bank", "country_codes": ["US"]}],
			"total": 2
		}`))
	}))

	institutions, err := adapter.GetInstitutions(context.Background(), banking.InstitutionsRequest{})
	assert.NoError(t, err)
	assert.Len(t, institutions, 2)
	assert.Equal(t, "ins_1", institutions[0].ID)
	assert.Equal(t, "aWNvbg==", institutions[0].Logo)
	assert.Equal(t, "US", institutions[0].Country)
}

func TestGetConnectionStatus_ItemErrorState(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/get", r.URL.Path)
		w.Write([]byte(`{"item": {"item_id": "item-1", "institution_id": "ins_3", "error": {"error_type": "ITEM_ERROR", "error_code": "ITEM_LOGIN_REQUIRED"}}}`))
	}))

	status, err := adapter.GetConnectionStatus(context.Background(), "token")
	assert.NoError(t, err)
	assert.Equal(t, banking.Disconnected, status.Status)
}

func TestGetConnectionStatus_HealthyItem(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"item": {"item_id": "item-1", "institution_id": "ins_3", "error": null}}`))
	}))

	status, err := adapter.GetConnectionStatus(context.Background(), "token")
	assert.NoError(t, err)
	assert.Equal(t, banking.Connected, status.Status)
}

func TestDeleteConnection_RemovesItem(t *testing.T) {
	removed := false
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/remove", r.URL.Path)
		removed = true
		w.Write([]byte(`{"request_id": "req-1"}`))
	}))

	assert.NoError(t, adapter.DeleteConnection(context.Background(), "token"))
	assert.True(t, removed)
}

func TestGetAccountBalance_UnknownAccountIsNilNotError(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/balance/get", r.URL.Path)
		w.Write([]byte(`{"accounts": [], "item": {"item_id": "item-1"}}`))
	}))

	balance, err := adapter.GetAccountBalance(context.Background(), banking.BalanceRequest{AccountID: "acc-unknown", AccessToken: "token"})
	assert.NoError(t, err)
	assert.Nil(t, balance)
}
