// Package gocardless adapts the GoCardless bank account data API (the
// Nordigen lineage EU/UK open-banking aggregator) to the canonical model.
package gocardless

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/balance"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

const (
	// latestWindow keeps "latest only" fetches cheap; GoCardless rations
	// account-scoped calls per day, so narrow windows matter here.
	latestWindow = 5 * 24 * time.Hour

	// fullHistoryWindow is the broadest range requested before the
	// vendor's own per-institution history cap kicks in.
	fullHistoryWindow = 730 * 24 * time.Hour

	// fallbackWindow bounds the retry when the broad request fails.
	fallbackWindow = 90 * 24 * time.Hour

	// staleThreshold triggers a fresher refetch when the newest booked
	// transaction of a broad-range result is older than this.
	staleThreshold = 7 * 24 * time.Hour

	staleRetryWindow = 31 * 24 * time.Hour
)

// Adapter implements banking.Adapter for GoCardless.
type Adapter struct {
	client *client
	log    *logrus.Logger
}

// New constructs the GoCardless adapter.
func New(cfg Config, creds *credentials.Cache, log *logrus.Logger, collector *metrics.Collector) *Adapter {
	return &Adapter{
		client: newClient(cfg, creds, log, collector),
		log:    log,
	}
}

// Provider returns the dispatch tag.
func (a *Adapter) Provider() banking.Provider { return banking.ProviderGoCardless }

// GetAccounts resolves a requisition to canonical accounts. Details and
// balances for every account are fetched concurrently and joined.
func (a *Adapter) GetAccounts(ctx context.Context, req banking.AccountsRequest) ([]banking.Account, error) {
	var requisitionResp requisition
	if err := a.client.do(ctx, http.MethodGet, "/api/v2/requisitions/"+req.Ref+"/", nil, nil, &requisitionResp); err != nil {
		return nil, err
	}

	var (
		inst      *institution
		expiresAt *time.Time
		metaWG    sync.WaitGroup
	)
	metaWG.Add(1)
	go func() {
		defer metaWG.Done()
		if requisitionResp.InstitutionID != "" {
			var i institution
			if err := a.client.do(ctx, http.MethodGet, "/api/v2/institutions/"+requisitionResp.InstitutionID+"/", nil, nil, &i); err != nil {
				a.log.WithError(err).Warn("GoCardless.GetAccounts.institution lookup failed")
			} else {
				inst = &i
			}
		}
		if requisitionResp.Agreement != "" {
			var ag agreement
			if err := a.client.do(ctx, http.MethodGet, "/api/v2/agreements/enduser/"+requisitionResp.Agreement+"/", nil, nil, &ag); err != nil {
				a.log.WithError(err).Warn("GoCardless.GetAccounts.agreement lookup failed")
			} else if ag.Accepted != "" && ag.AccessValidForDays > 0 {
				if accepted, err := time.Parse(time.RFC3339, ag.Accepted); err == nil {
					expiry := accepted.AddDate(0, 0, ag.AccessValidForDays)
					expiresAt = &expiry
				}
			}
		}
	}()

	type fetched struct {
		index    int
		details  accountDetails
		balances []balanceRecord
		err      error
	}

	results := make([]fetched, len(requisitionResp.Accounts))
	var wg sync.WaitGroup
	for i, accountID := range requisitionResp.Accounts {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			f := fetched{index: i}
			f.err = a.client.do(ctx, http.MethodGet, "/api/v2/accounts/"+accountID+"/details/", nil, nil, &f.details)
			if f.err == nil {
				var resp balancesResponse
				f.err = a.client.do(ctx, http.MethodGet, "/api/v2/accounts/"+accountID+"/balances/", nil, nil, &resp)
				f.balances = resp.Balances
			}
			results[i] = f
		}(i, accountID)
	}
	wg.Wait()
	metaWG.Wait()

	accounts := make([]banking.Account, 0, len(results))
	for i, f := range results {
		if f.err != nil {
			return nil, f.err
		}
		account, err := mapAccount(requisitionResp.ID, f.details, f.balances, inst, expiresAt)
		if err != nil {
			return nil, err
		}
		account.ID = requisitionResp.Accounts[i]
		if inst != nil && account.Name == "" {
			account.Name = inst.Name
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// GetTransactions fetches and normalizes an account's transactions.
// GoCardless returns the whole requested range in one response, so the
// work here is range strategy rather than pagination: broad first, then a
// fresher window when the broad result looks stale, and a bounded default
// when the broad request fails outright.
func (a *Adapter) GetTransactions(ctx context.Context, req banking.TransactionsRequest) ([]banking.Transaction, error) {
	if req.Latest {
		resp, err := a.fetchTransactions(ctx, req.AccountID, latestWindow)
		if err != nil {
			return nil, err
		}
		return a.normalize(resp, req.AccountType)
	}

	resp, err := a.fetchTransactions(ctx, req.AccountID, fullHistoryWindow)
	if err != nil {
		a.log.WithError(err).Warn("GoCardless.GetTransactions.broad range failed, using bounded default")
		resp, err = a.fetchTransactions(ctx, req.AccountID, fallbackWindow)
		if err != nil {
			return nil, err
		}
		return a.normalize(resp, req.AccountType)
	}

	if stale, newest := a.isStale(resp); stale {
		a.log.WithField("newest", newest).Info("GoCardless.GetTransactions.broad result stale, refetching narrow window")
		fresh, err := a.fetchTransactions(ctx, req.AccountID, staleRetryWindow)
		if err == nil && len(fresh.Transactions.Booked) > 0 {
			resp = fresh
		}
	}
	return a.normalize(resp, req.AccountType)
}

func (a *Adapter) fetchTransactions(ctx context.Context, accountID string, window time.Duration) (transactionsResponse, error) {
	query := url.Values{}
	query.Set("date_from", time.Now().Add(-window).Format("2006-01-02"))

	var resp transactionsResponse
	err := a.client.do(ctx, http.MethodGet, "/api/v2/accounts/"+accountID+"/transactions/", query, nil, &resp)
	return resp, err
}

func (a *Adapter) isStale(resp transactionsResponse) (bool, string) {
	var newest time.Time
	for _, t := range resp.Transactions.Booked {
		if date, err := parseDate(t.BookingDate, t.ValueDate); err == nil && date.After(newest) {
			newest = date
		}
	}
	if newest.IsZero() {
		return false, ""
	}
	return time.Since(newest) > staleThreshold, newest.Format("2006-01-02")
}

func (a *Adapter) normalize(resp transactionsResponse, accountType banking.AccountType) ([]banking.Transaction, error) {
	out := make([]banking.Transaction, 0, len(resp.Transactions.Booked)+len(resp.Transactions.Pending))
	for _, t := range resp.Transactions.Booked {
		mapped, err := mapTransaction(t, banking.TransactionPosted, accountType)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	for _, t := range resp.Transactions.Pending {
		mapped, err := mapTransaction(t, banking.TransactionPending, accountType)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}

// GetAccountBalance resolves the single current balance for one account.
func (a *Adapter) GetAccountBalance(ctx context.Context, req banking.BalanceRequest) (*banking.Balance, error) {
	var resp balancesResponse
	if err := a.client.do(ctx, http.MethodGet, "/api/v2/accounts/"+req.AccountID+"/balances/", nil, nil, &resp); err != nil {
		return nil, err
	}

	records, err := balanceRecords(resp.Balances)
	if err != nil {
		return nil, err
	}
	primary, ok := balance.Resolve(records, "")
	if !ok {
		// No balance is a reportable state, not a failure.
		return nil, nil
	}

	amount := banking.NormalizeCreditBalance(req.AccountType, primary.Amount)
	return &banking.Balance{
		Amount:   amount,
		Currency: banking.ResolveCurrency(primary.Currency),
	}, nil
}

// GetInstitutions lists ASPSPs, optionally filtered by country.
func (a *Adapter) GetInstitutions(ctx context.Context, req banking.InstitutionsRequest) ([]banking.Institution, error) {
	query := url.Values{}
	if req.CountryCode != "" {
		query.Set("country", strings.ToLower(req.CountryCode))
	}

	var resp []institution
	if err := a.client.do(ctx, http.MethodGet, "/api/v2/institutions/", query, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]banking.Institution, 0, len(resp))
	for _, i := range resp {
		country := ""
		if len(i.Countries) > 0 {
			country = i.Countries[0]
		}
		out = append(out, banking.Institution{
			ID:       i.ID,
			Name:     i.Name,
			Logo:     i.Logo,
			Provider: banking.ProviderGoCardless,
			Country:  country,
		})
	}
	return out, nil
}

// GetConnectionStatus derives connected/disconnected from the requisition
// lifecycle state.
func (a *Adapter) GetConnectionStatus(ctx context.Context, ref string) (banking.ConnectionStatus, error) {
	var resp requisition
	if err := a.client.do(ctx, http.MethodGet, "/api/v2/requisitions/"+ref+"/", nil, nil, &resp); err != nil {
		if banking.IsDisconnected(err) {
			return banking.ConnectionStatus{Status: banking.Disconnected}, nil
		}
		return banking.ConnectionStatus{}, err
	}

	// LN = linked. EX/SU/RJ and every pre-link state are not usable.
	if strings.EqualFold(resp.Status, "LN") {
		return banking.ConnectionStatus{Status: banking.Connected}, nil
	}
	return banking.ConnectionStatus{Status: banking.Disconnected}, nil
}

// DeleteConnection revokes the requisition at the vendor, best effort.
func (a *Adapter) DeleteConnection(ctx context.Context, ref string) error {
	return a.client.do(ctx, http.MethodDelete, "/api/v2/requisitions/"+ref+"/", nil, nil, nil)
}

// DeleteAccounts has no narrower vendor operation than deleting the
// requisition itself.
func (a *Adapter) DeleteAccounts(ctx context.Context, ref string) error {
	return a.DeleteConnection(ctx, ref)
}

// HealthCheck probes vendor reachability with the cheapest authenticated
// listing available.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	query := url.Values{}
	query.Set("country", "gb")
	var resp []institution
	if err := a.client.do(ctx, http.MethodGet, "/api/v2/institutions/", query, nil, &resp); err != nil {
		return fmt.Errorf("gocardless health check: %w", err)
	}
	return nil
}
