// Package plaid adapts the Plaid US card/ledger aggregator to the
// canonical model. Every call is a POST carrying the client id and secret
// in the body; transactions arrive through the cursor-based sync
// endpoint.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/identity"
	"github.com/carson-networks/bank-bridge/internal/banking/ratelimit"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

const (
	defaultBaseURL = "https://production.plaid.com"

	syncPageSize = 500

	institutionsPageSize = 500
)

// Config carries the vendor secrets and endpoint, injected at
// construction and never logged.
type Config struct {
	ClientID string
	Secret   string
	BaseURL  string
}

// Adapter implements banking.Adapter for Plaid.
type Adapter struct {
	cfg     Config
	http    *http.Client
	log     *logrus.Logger
	metrics *metrics.Collector
}

// New constructs the Plaid adapter.
func New(cfg Config, log *logrus.Logger, collector *metrics.Collector) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
		metrics: collector,
	}
}

// Provider returns the dispatch tag.
func (a *Adapter) Provider() banking.Provider { return banking.ProviderPlaid }

func (a *Adapter) post(ctx context.Context, path string, body map[string]any, out any) error {
	err := ratelimit.Do(ctx, func(ctx context.Context) error {
		return a.postOnce(ctx, path, body, out)
	}, func() {
		if a.metrics != nil {
			a.metrics.RecordRateLimitRetry(string(banking.ProviderPlaid))
		}
	})
	return translateExhausted(err)
}

// translateExhausted maps a rate-limit error that survived every retry
// onto the canonical taxonomy.
func translateExhausted(err error) error {
	var limited *ratelimit.Limited
	if !errors.As(err, &limited) {
		return err
	}
	var bankErr *banking.Error
	if errors.As(limited.Err, &bankErr) {
		return bankErr
	}
	return banking.NewError(banking.ProviderPlaid, banking.ErrCodeRateLimited, "", "rate limit retries exhausted")
}

func (a *Adapter) postOnce(ctx context.Context, path string, body map[string]any, out any) error {
	payload := map[string]any{
		"client_id": a.cfg.ClientID,
		"secret":    a.cfg.Secret,
	}
	for k, v := range body {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if limited := ratelimit.FromResponse(resp); limited != nil {
		return limited
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return a.translateError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("plaid: decode %s: %w", path, err)
	}
	return nil
}

// disconnectedCodes are the Plaid error codes that all mean "the user
// must re-authorize this item".
var disconnectedCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED":  true,
	"INVALID_CREDENTIALS":  true,
	"INVALID_MFA":          true,
	"ITEM_LOCKED":          true,
	"USER_SETUP_REQUIRED":  true,
	"MFA_NOT_SUPPORTED":    true,
	"NO_ACCOUNTS":          true,
	"ITEM_NOT_FOUND":       true,
	"ACCESS_NOT_GRANTED":   true,
	"INVALID_ACCESS_TOKEN": true,
}

func (a *Adapter) translateError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	message := apiErr.ErrorMessage
	if message == "" {
		message = fmt.Sprintf("http %d", status)
	}

	switch {
	case disconnectedCodes[apiErr.ErrorCode]:
		return banking.NewError(banking.ProviderPlaid, banking.ErrCodeDisconnected, apiErr.ErrorCode, message)
	case apiErr.ErrorType == "RATE_LIMIT_EXCEEDED":
		return &ratelimit.Limited{Err: banking.NewError(banking.ProviderPlaid, banking.ErrCodeRateLimited, apiErr.ErrorCode, message)}
	default:
		a.log.WithField("provider", banking.ProviderPlaid).
			WithField("raw_code", apiErr.ErrorCode).
			WithField("status", status).
			Warn("Plaid.translateError.unknown vendor code")
		return banking.NewError(banking.ProviderPlaid, banking.ErrCodeUnknown, apiErr.ErrorCode, message)
	}
}

// GetAccounts returns the item's accounts. Ref is the item access token.
func (a *Adapter) GetAccounts(ctx context.Context, req banking.AccountsRequest) ([]banking.Account, error) {
	var resp accountsResponse
	if err := a.post(ctx, "/accounts/get", map[string]any{"access_token": req.Ref}, &resp); err != nil {
		return nil, err
	}

	accounts := make([]banking.Account, 0, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		accounts = append(accounts, mapAccount(acc, resp.Item))
	}
	return accounts, nil
}

func mapAccountType(t string) banking.AccountType {
	switch strings.ToLower(t) {
	case "credit":
		return banking.AccountTypeCredit
	case "loan":
		return banking.AccountTypeLoan
	default:
		return banking.AccountTypeDepository
	}
}

func mapAccount(acc account, it item) banking.Account {
	accountType := mapAccountType(acc.Type)

	current := decimal.Zero
	if acc.Balances.Current != nil {
		current = decimal.NewFromFloat(*acc.Balances.Current)
	}

	var available *decimal.Decimal
	if acc.Balances.Available != nil {
		v := decimal.NewFromFloat(*acc.Balances.Available)
		available = &v
	}
	var limit *decimal.Decimal
	if acc.Balances.Limit != nil {
		v := decimal.NewFromFloat(*acc.Balances.Limit)
		limit = &v
	}

	name := acc.Name
	if name == "" {
		name = acc.OfficialName
	}

	// Plaid already reports credit balances as positive amounts owed;
	// normalization only guards against the occasional negative
	// overpayment representation.
	return banking.Account{
		ID:               acc.AccountID,
		Name:             name,
		Currency:         banking.ResolveCurrency(acc.Balances.ISOCurrencyCode, acc.Balances.UnofficialCurrencyCode),
		Type:             accountType,
		InstitutionID:    it.InstitutionID,
		Provider:         banking.ProviderPlaid,
		Balance:          banking.NormalizeCreditBalance(accountType, current),
		AvailableBalance: available,
		CreditLimit:      limit,
		ResourceID:       acc.Mask,
		EnrollmentID:     it.ItemID,
	}
}

// GetTransactions drains the sync cursor fully, then filters to the
// requested account. "Latest" requests additionally trim to the narrow
// window after the drain; the sync endpoint has no date filter of its
// own.
func (a *Adapter) GetTransactions(ctx context.Context, req banking.TransactionsRequest) ([]banking.Transaction, error) {
	cutoff := time.Time{}
	if req.Latest {
		cutoff = time.Now().AddDate(0, 0, -5)
	}

	var all []transaction
	cursor := ""
	for {
		body := map[string]any{
			"access_token": req.AccessToken,
			"count":        syncPageSize,
		}
		if cursor != "" {
			body["cursor"] = cursor
		}

		var resp transactionsSyncResponse
		if err := a.post(ctx, "/transactions/sync", body, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Added...)
		all = append(all, resp.Modified...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	out := make([]banking.Transaction, 0, len(all))
	for _, t := range all {
		if t.AccountID != req.AccountID {
			continue
		}
		mapped, err := mapTransaction(t, req.AccountType)
		if err != nil {
			return nil, err
		}
		if !cutoff.IsZero() && mapped.Date.Before(cutoff) {
			continue
		}
		out = append(out, mapped)
	}
	return out, nil
}

func mapTransaction(t transaction, accountType banking.AccountType) (banking.Transaction, error) {
	// Plaid inverts the canonical convention: positive means money out.
	amount := decimal.NewFromFloat(t.Amount).Neg()

	date, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		return banking.Transaction{}, fmt.Errorf("plaid: parse date %q: %w", t.Date, err)
	}

	status := banking.TransactionPosted
	if t.Pending {
		status = banking.TransactionPending
	}

	category := ""
	if t.PersonalFinanceCategory != nil {
		category = strings.ToLower(t.PersonalFinanceCategory.Primary)
	} else if len(t.Category) > 0 {
		category = strings.ToLower(t.Category[0])
	}

	counterparty := t.MerchantName
	if counterparty == "" {
		counterparty = t.Name
	}

	return banking.Transaction{
		ID:           identity.Derive(t.TransactionID, "", identity.Fundamentals{}),
		Amount:       amount,
		Currency:     banking.ResolveCurrency(t.ISOCurrencyCode),
		Date:         date,
		Status:       status,
		Category:     banking.Categorize(accountType, amount, category),
		Counterparty: counterparty,
		Method:       mapMethod(t.PaymentChannel),
		Description:  t.Name,
	}, nil
}

func mapMethod(channel string) banking.TransactionMethod {
	switch strings.ToLower(channel) {
	case "in store", "in_store":
		return banking.MethodCard
	case "online":
		return banking.MethodPayment
	default:
		return banking.MethodOther
	}
}

// GetAccountBalance fetches fresh balances for one account.
func (a *Adapter) GetAccountBalance(ctx context.Context, req banking.BalanceRequest) (*banking.Balance, error) {
	body := map[string]any{
		"access_token": req.AccessToken,
		"options":      map[string]any{"account_ids": []string{req.AccountID}},
	}
	var resp accountsResponse
	if err := a.post(ctx, "/accounts/balance/get", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Accounts) == 0 {
		return nil, nil
	}

	acc := resp.Accounts[0]
	mapped := mapAccount(acc, resp.Item)
	return &banking.Balance{
		Amount:    mapped.Balance,
		Currency:  mapped.Currency,
		Available: mapped.AvailableBalance,
		Limit:     mapped.CreditLimit,
	}, nil
}

// GetInstitutions drains offset pagination over the full institution
// catalog.
func (a *Adapter) GetInstitutions(ctx context.Context, req banking.InstitutionsRequest) ([]banking.Institution, error) {
	countries := []string{"US"}
	if req.CountryCode != "" {
		countries = []string{strings.ToUpper(req.CountryCode)}
	}

	var out []banking.Institution
	offset := 0
	for {
		body := map[string]any{
			"count":         institutionsPageSize,
			"offset":        offset,
			"country_codes": countries,
			"options":       map[string]any{"include_optional_metadata": true},
		}
		var resp institutionsResponse
		if err := a.post(ctx, "/institutions/get", body, &resp); err != nil {
			return nil, err
		}

		for _, i := range resp.Institutions {
			out = append(out, mapInstitution(i))
		}

		offset += len(resp.Institutions)
		if offset >= resp.Total || len(resp.Institutions) == 0 {
			return out, nil
		}
	}
}

func mapInstitution(i institution) banking.Institution {
	country := ""
	if len(i.CountryCodes) > 0 {
		country = i.CountryCodes[0]
	}
	return banking.Institution{
		ID:       i.InstitutionID,
		Name:     i.Name,
		Logo:     i.Logo,
		Provider: banking.ProviderPlaid,
		Country:  country,
	}
}

// GetConnectionStatus inspects the item's standing error state.
func (a *Adapter) GetConnectionStatus(ctx context.Context, ref string) (banking.ConnectionStatus, error) {
	var resp itemResponse
	if err := a.post(ctx, "/item/get", map[string]any{"access_token": ref}, &resp); err != nil {
		if banking.IsDisconnected(err) {
			return banking.ConnectionStatus{Status: banking.Disconnected}, nil
		}
		return banking.ConnectionStatus{}, err
	}

	if resp.Item.Error != nil && disconnectedCodes[resp.Item.Error.ErrorCode] {
		return banking.ConnectionStatus{Status: banking.Disconnected}, nil
	}
	return banking.ConnectionStatus{Status: banking.Connected}, nil
}

// DeleteConnection removes the item at Plaid, invalidating its token.
func (a *Adapter) DeleteConnection(ctx context.Context, ref string) error {
	return a.post(ctx, "/item/remove", map[string]any{"access_token": ref}, nil)
}

// DeleteAccounts has no narrower vendor operation than removing the
// item itself.
func (a *Adapter) DeleteAccounts(ctx context.Context, ref string) error {
	return a.DeleteConnection(ctx, ref)
}

// HealthCheck probes reachability with a minimal catalog page.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	body := map[string]any{
		"count":         1,
		"offset":        0,
		"country_codes": []string{"US"},
	}
	var resp institutionsResponse
	if err := a.post(ctx, "/institutions/get", body, &resp); err != nil {
		return fmt.Errorf("plaid health check: %w", err)
	}
	return nil
}
