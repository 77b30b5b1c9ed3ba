package enablebanking

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/cache/memory"
)

func testSigningKey(t *testing.T) ([]byte, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return pemData, &key.PublicKey
}

func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *rsa.PublicKey) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)

	pemData, pub := testSigningKey(t)
	adapter, err := New(Config{
		ApplicationID: "app-1",
		PrivateKey:    pemData,
		BaseURL:       server.URL,
	}, credentials.New(store), logrus.New(), nil)
	require.NoError(t, err)
	return adapter, pub
}

// verifyAssertion checks the bearer JWT signature and returns its claims.
func verifyAssertion(t *testing.T, r *http.Request, pub *rsa.PublicKey) (map[string]string, map[string]any) {
	t.Helper()
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	require.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature))

	var header map[string]string
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(headerJSON, &header))

	var claims map[string]any
	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(claimsJSON, &claims))
	return header, claims
}

func TestNew_MalformedKeyFailsAtConstruction(t *testing.T) {
	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)

	_, err := New(Config{ApplicationID: "app-1", PrivateKey: []byte("not a key")}, credentials.New(store), logrus.New(), nil)
	assert.Error(t, err)
}

func TestHealthCheck_SignedAssertionSentAndReused(t *testing.T) {
	var tokens []string
	var pub *rsa.PublicKey
	adapter, pubKey := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header, claims := verifyAssertion(t, r, pub)
		assert.Equal(t, "RS256", header["alg"])
		assert.Equal(t, "app-1", header["kid"])
		assert.Equal(t, "enablebanking.com", claims["iss"])
		assert.Equal(t, "api.enablebanking.com", claims["aud"])

		tokens = append(tokens, r.Header.Get("Authorization"))
		assert.Equal(t, "/application", r.URL.Path)
		w.Write([]byte(`{"name":"bank-bridge"}`))
	}))
	pub = pubKey

	assert.NoError(t, adapter.HealthCheck(context.Background()))
	assert.NoError(t, adapter.HealthCheck(context.Background()))

	// The assertion is signed once and reused while valid.
	assert.Len(t, tokens, 2)
	assert.Equal(t, tokens[0], tokens[1])
}

func TestGetAccounts_SessionResolvedToCanonicalAccounts(t *testing.T) {
	validUntil := time.Now().AddDate(0, 0, 60).UTC().Truncate(time.Second)
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/sess-1":
			w.Write([]byte(`{"status":"AUTHORIZED","accounts":["uid-1"],"aspsp":{"name":"Nordea","country":"FI"},"access":{"valid_until":"` + validUntil.Format(time.RFC3339) + `"}}`))
		case "/accounts/uid-1/details":
			w.Write([]byte(`{"uid":"uid-1","name":"","product":"Perk Account","currency":"EUR","account_id":{"iban":"FI2112345600000785"},"account_servicer":{"bic_fi":"NDEAFIHH"},"cash_account_type":"CACC","identification_hash":"hash-1"}`))
		case "/accounts/uid-1/balances":
			w.Write([]byte(`{"balances":[{"balance_amount":{"amount":"642.10","currency":"EUR"},"balance_type":"interimAvailable"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	accounts, err := adapter.GetAccounts(context.Background(), banking.AccountsRequest{Ref: "sess-1"})
	assert.NoError(t, err)
	assert.Len(t, accounts, 1)

	acc := accounts[0]
	assert.Equal(t, "uid-1", acc.ID)
	assert.Equal(t, "Perk Account", acc.Name)
	assert.Equal(t, banking.AccountTypeDepository, acc.Type)
	assert.Equal(t, "EUR", acc.Currency)
	assert.Equal(t, "FI2112345600000785", acc.IBAN)
	assert.Equal(t, "NDEAFIHH", acc.BIC)
	assert.Equal(t, "hash-1", acc.ResourceID)
	assert.Equal(t, "nordea-fi", acc.InstitutionID)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("642.10")))
	if assert.NotNil(t, acc.ExpiresAt) {
		assert.True(t, acc.ExpiresAt.Equal(validUntil))
	}
}

func TestGetAccounts_ASPSPNameFallsBackWhenDetailsAreBare(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/sess-2":
			w.Write([]byte(`{"status":"AUTHORIZED","accounts":["uid-2"],"aspsp":{"name":"Swedbank","country":"SE"}}`))
		case "/accounts/uid-2/details":
			w.Write([]byte(`{"uid":"uid-2","currency":"SEK","account_id":{"iban":"SE3550000000054910000003"}}`))
		case "/accounts/uid-2/balances":
			w.Write([]byte(`{"balances":[]}`))
		}
	}))

	accounts, err := adapter.GetAccounts(context.Background(), banking.AccountsRequest{Ref: "sess-2"})
	assert.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, "Swedbank", accounts[0].Name)
	// No identification hash means the IBAN carries the stable handle.
	assert.Equal(t, "SE3550000000054910000003", accounts[0].ResourceID)
	assert.Nil(t, accounts[0].ExpiresAt)
}

func TestGetTransactions_ContinuationKeyDrained(t *testing.T) {
	var fetches atomic.Int32
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/uid-1/transactions", r.URL.Path)
		assert.Equal(t, "longest", r.URL.Query().Get("strategy"))

		switch fetches.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("continuation_key"))
			w.Write([]byte(`{"transactions":[
				{"entry_reference":"ref-1","status":"BOOK","booking_date":"2026-08-28","transaction_amount":{"amount":"55.00","currency":"EUR"},"credit_debit_indicator":"DBIT","creditor":{"name":"Landlord"},"remittance_information":["RENT"],"bank_transaction_code":{"code":"PMNT","description":"Payment"}}
			],"continuation_key":"page-2"}`))
		default:
			assert.Equal(t, "page-2", r.URL.Query().Get("continuation_key"))
			w.Write([]byte(`{"transactions":[
				{"status":"PDNG","value_date":"2026-08-29","transaction_amount":{"amount":"120.00","currency":"EUR"},"credit_debit_indicator":"CRDT","debtor":{"name":"Client"},"remittance_information":["INVOICE","42"]}
			],"continuation_key":""}`))
		}
	}))

	txs, err := adapter.GetTransactions(context.Background(), banking.TransactionsRequest{
		AccountID:   "uid-1",
		AccountType: banking.AccountTypeDepository,
		Latest:      true,
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
	assert.Len(t, txs, 2)

	outflow := txs[0]
	assert.True(t, outflow.Amount.Equal(decimal.RequireFromString("-55.00")))
	assert.Equal(t, banking.TransactionPosted, outflow.Status)
	assert.Equal(t, "Landlord", outflow.Counterparty)
	assert.Equal(t, "RENT", outflow.Description)
	assert.Equal(t, banking.MethodPayment, outflow.Method)

	inflow := txs[1]
	assert.True(t, inflow.Amount.Equal(decimal.RequireFromString("120.00")))
	assert.Equal(t, banking.TransactionPending, inflow.Status)
	assert.Equal(t, "Client", inflow.Counterparty)
	assert.Equal(t, "INVOICE 42", inflow.Description)
	assert.Equal(t, "income", inflow.Category)
	assert.NotEmpty(t, inflow.ID)
	assert.NotEqual(t, outflow.ID, inflow.ID)
}

func TestGetTransactions_BroadFailureFallsBackToBoundedWindow(t *testing.T) {
	var fetches atomic.Int32
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"WRONG_REQUEST_PARAMETERS","message":"date_from too far back"}`))
			return
		}
		from, err := time.Parse("2006-01-02", r.URL.Query().Get("date_from"))
		assert.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(-fallbackWindow), from, 48*time.Hour)
		w.Write([]byte(`{"transactions":[],"continuation_key":""}`))
	}))

	txs, err := adapter.GetTransactions(context.Background(), banking.TransactionsRequest{AccountID: "uid-1"})
	assert.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestGetAccountBalance_CreditCardDebtReportedPositive(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances":[{"balance_amount":{"amount":"-230.00","currency":"EUR"},"balance_type":"closingBooked"}]}`))
	}))

	bal, err := adapter.GetAccountBalance(context.Background(), banking.BalanceRequest{
		AccountID:   "uid-1",
		AccountType: banking.AccountTypeCredit,
	})
	assert.NoError(t, err)
	if assert.NotNil(t, bal) {
		assert.True(t, bal.Amount.Equal(decimal.RequireFromString("230.00")))
	}
}

func TestGetInstitutions_CountryUppercasedAndIDDerived(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/aspsps", r.URL.Path)
		assert.Equal(t, "FI", r.URL.Query().Get("country"))
		w.Write([]byte(`{"aspsps":[{"name":"OP Bank","country":"FI","logo":"https://cdn/op.png"}]}`))
	}))

	institutions, err := adapter.GetInstitutions(context.Background(), banking.InstitutionsRequest{CountryCode: "fi"})
	assert.NoError(t, err)
	assert.Len(t, institutions, 1)
	assert.Equal(t, "op-bank-fi", institutions[0].ID)
	assert.Equal(t, banking.ProviderEnableBanking, institutions[0].Provider)
}

func TestGetConnectionStatus_AuthorizedButExpiredAccessIsDisconnected(t *testing.T) {
	validUntil := time.Now().AddDate(0, 0, -1).UTC().Format(time.RFC3339)
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"AUTHORIZED","access":{"valid_until":"` + validUntil + `"}}`))
	}))

	got, err := adapter.GetConnectionStatus(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, banking.Disconnected, got.Status)
}

func TestGetConnectionStatus_SessionExpiredErrorIsDisconnectedState(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"SESSION_EXPIRED","message":"session is no longer usable"}`))
	}))

	got, err := adapter.GetConnectionStatus(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, banking.Disconnected, got.Status)
}

func TestDo_RateLimitRetriedThenTaxonomyError(t *testing.T) {
	var calls atomic.Int32
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := adapter.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, banking.ErrCodeRateLimited, banking.CodeOf(err))
}

func TestDeleteConnection_ClosesSession(t *testing.T) {
	var deleted atomic.Bool
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/sessions/sess-1", r.URL.Path)
		deleted.Store(true)
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, adapter.DeleteConnection(context.Background(), "sess-1"))
	assert.True(t, deleted.Load())
}
