// Package enablebanking adapts the EnableBanking open-banking API to the
// canonical model. Authentication is a signed RS256 JWT assertion rather
// than an exchanged bearer token.
package enablebanking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/balance"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/banking/identity"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

const (
	latestWindow      = 5 * 24 * time.Hour
	fullHistoryWindow = 730 * 24 * time.Hour
	fallbackWindow    = 90 * 24 * time.Hour
	staleThreshold    = 7 * 24 * time.Hour
	staleRetryWindow  = 31 * 24 * time.Hour
)

// Adapter implements banking.Adapter for EnableBanking.
type Adapter struct {
	client *client
	log    *logrus.Logger
}

// New constructs the EnableBanking adapter, parsing the signing key up
// front so a malformed key fails at composition time.
func New(cfg Config, creds *credentials.Cache, log *logrus.Logger, collector *metrics.Collector) (*Adapter, error) {
	c, err := newClient(cfg, creds, log, collector)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, log: log}, nil
}

// Provider returns the dispatch tag.
func (a *Adapter) Provider() banking.Provider { return banking.ProviderEnableBanking }

// GetAccounts resolves a session to canonical accounts; details and
// balances per account are fetched concurrently and joined.
func (a *Adapter) GetAccounts(ctx context.Context, req banking.AccountsRequest) ([]banking.Account, error) {
	var sess session
	if err := a.client.do(ctx, http.MethodGet, "/sessions/"+req.Ref, nil, &sess); err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if sess.Access.ValidUntil != "" {
		if until, err := time.Parse(time.RFC3339, sess.Access.ValidUntil); err == nil {
			expiresAt = &until
		}
	}

	type fetched struct {
		details  accountDetails
		balances []balanceRecord
		err      error
	}

	results := make([]fetched, len(sess.Accounts))
	var wg sync.WaitGroup
	for i, uid := range sess.Accounts {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			f := fetched{}
			f.err = a.client.do(ctx, http.MethodGet, "/accounts/"+uid+"/details", nil, &f.details)
			if f.err == nil {
				var resp balancesResponse
				f.err = a.client.do(ctx, http.MethodGet, "/accounts/"+uid+"/balances", nil, &resp)
				f.balances = resp.Balances
			}
			results[i] = f
		}(i, uid)
	}
	wg.Wait()

	accounts := make([]banking.Account, 0, len(results))
	for i, f := range results {
		if f.err != nil {
			return nil, f.err
		}
		account := a.mapAccount(sess, sess.Accounts[i], f.details, f.balances, expiresAt)
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (a *Adapter) mapAccount(sess session, uid string, details accountDetails, records []balanceRecord, expiresAt *time.Time) banking.Account {
	accountType := mapAccountType(details.CashAccountType)

	parsed := make([]balance.Record, 0, len(records))
	for _, r := range records {
		amount, err := decimal.NewFromString(r.BalanceAmount.Amount)
		if err != nil {
			a.log.WithField("amount", r.BalanceAmount.Amount).Warn("EnableBanking.mapAccount.unparseable balance skipped")
			continue
		}
		parsed = append(parsed, balance.Record{
			Type:     r.BalanceType,
			Amount:   amount,
			Currency: r.BalanceAmount.Currency,
		})
	}

	primary, _ := balance.Resolve(parsed, details.Currency)
	currency := banking.ResolveCurrency(details.Currency, primary.Currency)
	if !banking.CurrencyResolved(currency) {
		for _, r := range parsed {
			if banking.CurrencyResolved(r.Currency) {
				currency = banking.ResolveCurrency(r.Currency)
				break
			}
		}
	}

	name := details.Name
	if name == "" {
		name = details.Product
	}
	if name == "" {
		name = sess.ASPSP.Name
	}

	// identification_hash is EnableBanking's stable account handle and
	// survives re-authorization, which makes it the reconnection
	// matching signal of choice.
	resourceID := details.IdentificationHash
	if resourceID == "" {
		resourceID = details.AccountID.IBAN
	}

	return banking.Account{
		ID:            uid,
		Name:          name,
		Currency:      currency,
		Type:          accountType,
		InstitutionID: institutionID(sess.ASPSP.Name, sess.ASPSP.Country),
		Provider:      banking.ProviderEnableBanking,
		Balance:       banking.NormalizeCreditBalance(accountType, primary.Amount),
		ResourceID:    resourceID,
		IBAN:          details.AccountID.IBAN,
		BIC:           details.AccountServicer.BICFI,
		EnrollmentID:  "",
		ExpiresAt:     expiresAt,
	}
}

func mapAccountType(cashAccountType string) banking.AccountType {
	switch strings.ToUpper(strings.TrimSpace(cashAccountType)) {
	case "CARD":
		return banking.AccountTypeCredit
	case "LOAN":
		return banking.AccountTypeLoan
	default:
		return banking.AccountTypeDepository
	}
}

func institutionID(name, country string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-")) + "-" + strings.ToLower(country)
}

// GetTransactions drains continuation_key pagination fully; a partial
// page set is a defect, not a partial result. Full-history fetches use
// the longest strategy the ASPSP offers and fall back to a bounded range
// when the broad request fails.
func (a *Adapter) GetTransactions(ctx context.Context, req banking.TransactionsRequest) ([]banking.Transaction, error) {
	if req.Latest {
		raw, err := a.fetchAll(ctx, req.AccountID, latestWindow)
		if err != nil {
			return nil, err
		}
		return a.normalize(raw, req.AccountType)
	}

	raw, err := a.fetchAll(ctx, req.AccountID, fullHistoryWindow)
	if err != nil {
		a.log.WithError(err).Warn("EnableBanking.GetTransactions.broad range failed, using bounded default")
		raw, err = a.fetchAll(ctx, req.AccountID, fallbackWindow)
		if err != nil {
			return nil, err
		}
		return a.normalize(raw, req.AccountType)
	}

	if stale, newest := isStale(raw); stale {
		a.log.WithField("newest", newest).Info("EnableBanking.GetTransactions.broad result stale, refetching narrow window")
		fresh, err := a.fetchAll(ctx, req.AccountID, staleRetryWindow)
		if err == nil && len(fresh) > 0 {
			raw = fresh
		}
	}
	return a.normalize(raw, req.AccountType)
}

func (a *Adapter) fetchAll(ctx context.Context, accountID string, window time.Duration) ([]transaction, error) {
	var all []transaction
	continuation := ""
	for {
		query := url.Values{}
		query.Set("date_from", time.Now().Add(-window).Format("2006-01-02"))
		query.Set("strategy", "longest")
		if continuation != "" {
			query.Set("continuation_key", continuation)
		}

		var resp transactionsResponse
		if err := a.client.do(ctx, http.MethodGet, "/accounts/"+accountID+"/transactions", query, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Transactions...)

		if resp.ContinuationKey == "" {
			return all, nil
		}
		continuation = resp.ContinuationKey
	}
}

func isStale(raw []transaction) (bool, string) {
	var newest time.Time
	for _, t := range raw {
		if t.Status != "BOOK" {
			continue
		}
		if date, err := parseDate(t.BookingDate, t.ValueDate); err == nil && date.After(newest) {
			newest = date
		}
	}
	if newest.IsZero() {
		return false, ""
	}
	return time.Since(newest) > staleThreshold, newest.Format("2006-01-02")
}

func (a *Adapter) normalize(raw []transaction, accountType banking.AccountType) ([]banking.Transaction, error) {
	out := make([]banking.Transaction, 0, len(raw))
	for _, t := range raw {
		mapped, err := mapTransaction(t, accountType)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}

func mapTransaction(t transaction, accountType banking.AccountType) (banking.Transaction, error) {
	amount, err := decimal.NewFromString(t.TransactionAmount.Amount)
	if err != nil {
		return banking.Transaction{}, fmt.Errorf("enablebanking: parse transaction amount %q: %w", t.TransactionAmount.Amount, err)
	}

	// Amounts come unsigned with a separate credit/debit indicator.
	if strings.EqualFold(t.CreditDebitIndicator, "DBIT") && amount.IsPositive() {
		amount = amount.Neg()
	}

	var running *decimal.Decimal
	var runningText string
	if t.BalanceAfterTransaction != nil {
		if parsed, err := decimal.NewFromString(t.BalanceAfterTransaction.Amount); err == nil {
			running = &parsed
			runningText = t.BalanceAfterTransaction.Amount
		}
	}

	description := strings.Join(t.RemittanceInformation, " ")

	// EnableBanking rarely supplies a vendor transaction id; the entry
	// reference, then the fundamentals hash, carry identity.
	id := identity.Derive("", t.EntryReference, identity.Fundamentals{
		BookingDate:    t.BookingDate,
		ValueDate:      t.ValueDate,
		Amount:         t.TransactionAmount.Amount,
		Currency:       t.TransactionAmount.Currency,
		CreditDebit:    t.CreditDebitIndicator,
		Reference:      t.ReferenceNumber,
		Remittance:     description,
		RunningBalance: runningText,
	})

	date, err := parseDate(t.BookingDate, t.ValueDate)
	if err != nil {
		return banking.Transaction{}, err
	}

	status := banking.TransactionPosted
	if strings.EqualFold(t.Status, "PDNG") {
		status = banking.TransactionPending
	}

	counterparty := ""
	if amount.IsNegative() {
		if t.Creditor != nil {
			counterparty = t.Creditor.Name
		}
	} else if t.Debtor != nil {
		counterparty = t.Debtor.Name
	}

	method := banking.MethodOther
	if t.BankTransactionCode != nil {
		method = mapMethod(t.BankTransactionCode.Code + " " + t.BankTransactionCode.Description)
	}

	return banking.Transaction{
		ID:             id,
		Amount:         amount,
		Currency:       banking.ResolveCurrency(t.TransactionAmount.Currency),
		Date:           date,
		Status:         status,
		RunningBalance: running,
		Category:       banking.Categorize(accountType, amount, ""),
		Counterparty:   counterparty,
		Method:         method,
		Description:    description,
	}, nil
}

func mapMethod(text string) banking.TransactionMethod {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "CARD"):
		return banking.MethodCard
	case strings.Contains(upper, "TRANSFER"), strings.Contains(upper, "CRDT"):
		return banking.MethodTransfer
	case strings.Contains(upper, "PAYMENT"), strings.Contains(upper, "DBIT"):
		return banking.MethodPayment
	default:
		return banking.MethodOther
	}
}

func parseDate(bookingDate, valueDate string) (time.Time, error) {
	raw := bookingDate
	if raw == "" {
		raw = valueDate
	}
	if raw == "" {
		return time.Time{}, fmt.Errorf("enablebanking: transaction has no booking or value date")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("enablebanking: parse date %q: %w", raw, err)
	}
	return date, nil
}

// GetAccountBalance resolves the single current balance for one account.
func (a *Adapter) GetAccountBalance(ctx context.Context, req banking.BalanceRequest) (*banking.Balance, error) {
	var resp balancesResponse
	if err := a.client.do(ctx, http.MethodGet, "/accounts/"+req.AccountID+"/balances", nil, &resp); err != nil {
		return nil, err
	}

	parsed := make([]balance.Record, 0, len(resp.Balances))
	for _, r := range resp.Balances {
		amount, err := decimal.NewFromString(r.BalanceAmount.Amount)
		if err != nil {
			return nil, fmt.Errorf("enablebanking: parse balance amount %q: %w", r.BalanceAmount.Amount, err)
		}
		parsed = append(parsed, balance.Record{Type: r.BalanceType, Amount: amount, Currency: r.BalanceAmount.Currency})
	}

	primary, ok := balance.Resolve(parsed, "")
	if !ok {
		return nil, nil
	}
	return &banking.Balance{
		Amount:   banking.NormalizeCreditBalance(req.AccountType, primary.Amount),
		Currency: banking.ResolveCurrency(primary.Currency),
	}, nil
}

// GetInstitutions lists ASPSPs, optionally filtered by country.
func (a *Adapter) GetInstitutions(ctx context.Context, req banking.InstitutionsRequest) ([]banking.Institution, error) {
	query := url.Values{}
	if req.CountryCode != "" {
		query.Set("country", strings.ToUpper(req.CountryCode))
	}

	var resp aspspsResponse
	if err := a.client.do(ctx, http.MethodGet, "/aspsps", query, &resp); err != nil {
		return nil, err
	}

	out := make([]banking.Institution, 0, len(resp.ASPSPs))
	for _, s := range resp.ASPSPs {
		out = append(out, banking.Institution{
			ID:       institutionID(s.Name, s.Country),
			Name:     s.Name,
			Logo:     s.Logo,
			Provider: banking.ProviderEnableBanking,
			Country:  s.Country,
		})
	}
	return out, nil
}

// GetConnectionStatus derives connected/disconnected from session state.
func (a *Adapter) GetConnectionStatus(ctx context.Context, ref string) (banking.ConnectionStatus, error) {
	var sess session
	if err := a.client.do(ctx, http.MethodGet, "/sessions/"+ref, nil, &sess); err != nil {
		if banking.IsDisconnected(err) {
			return banking.ConnectionStatus{Status: banking.Disconnected}, nil
		}
		return banking.ConnectionStatus{}, err
	}

	if strings.EqualFold(sess.Status, "AUTHORIZED") {
		if sess.Access.ValidUntil != "" {
			if until, err := time.Parse(time.RFC3339, sess.Access.ValidUntil); err == nil && until.Before(time.Now()) {
				return banking.ConnectionStatus{Status: banking.Disconnected}, nil
			}
		}
		return banking.ConnectionStatus{Status: banking.Connected}, nil
	}
	return banking.ConnectionStatus{Status: banking.Disconnected}, nil
}

// DeleteConnection closes the session at the vendor, best effort.
func (a *Adapter) DeleteConnection(ctx context.Context, ref string) error {
	return a.client.do(ctx, http.MethodDelete, "/sessions/"+ref, nil, nil)
}

// DeleteAccounts has no narrower vendor operation than closing the
// session itself.
func (a *Adapter) DeleteAccounts(ctx context.Context, ref string) error {
	return a.DeleteConnection(ctx, ref)
}

// HealthCheck verifies the signed assertion is accepted.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	var app application
	if err := a.client.do(ctx, http.MethodGet, "/application", nil, &app); err != nil {
		return fmt.Errorf("enablebanking health check: %w", err)
	}
	return nil
}
