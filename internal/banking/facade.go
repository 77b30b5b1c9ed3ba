package banking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/carson-networks/bank-bridge/internal/metrics"
)

// Facade is the single entry point the rest of the application calls. It
// owns adapter selection; everything vendor-specific stays behind it.
type Facade struct {
	adapters map[Provider]Adapter
	breakers map[Provider]*gobreaker.CircuitBreaker
	log      *logrus.Logger
	metrics  *metrics.Collector
}

// NewFacade wires the given adapters behind one dispatch surface. Health
// probes per vendor are guarded by a circuit breaker so a flapping vendor
// is not hammered on every check.
func NewFacade(adapters map[Provider]Adapter, log *logrus.Logger, collector *metrics.Collector) *Facade {
	breakers := make(map[Provider]*gobreaker.CircuitBreaker, len(adapters))
	for tag := range adapters {
		breakers[tag] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(tag) + "-health",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return &Facade{
		adapters: adapters,
		breakers: breakers,
		log:      log,
		metrics:  collector,
	}
}

func (f *Facade) adapter(tag Provider) (Adapter, error) {
	a, ok := f.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("banking: no adapter for provider %q", tag)
	}
	return a, nil
}

// GetAccounts returns the canonical accounts behind one consent grant.
func (f *Facade) GetAccounts(ctx context.Context, tag Provider, req AccountsRequest) ([]Account, error) {
	a, err := f.adapter(tag)
	if err != nil {
		return nil, err
	}
	return observe(f, tag, "get_accounts", func() ([]Account, error) {
		return a.GetAccounts(ctx, req)
	})
}

// GetTransactions returns the canonical transactions for one account.
func (f *Facade) GetTransactions(ctx context.Context, tag Provider, req TransactionsRequest) ([]Transaction, error) {
	a, err := f.adapter(tag)
	if err != nil {
		return nil, err
	}
	return observe(f, tag, "get_transactions", func() ([]Transaction, error) {
		return a.GetTransactions(ctx, req)
	})
}

// GetAccountBalance returns the resolved current balance for one account.
func (f *Facade) GetAccountBalance(ctx context.Context, tag Provider, req BalanceRequest) (*Balance, error) {
	a, err := f.adapter(tag)
	if err != nil {
		return nil, err
	}
	return observe(f, tag, "get_balance", func() (*Balance, error) {
		return a.GetAccountBalance(ctx, req)
	})
}

// GetInstitutions returns one vendor's institution list. Cross-vendor
// aggregation lives in the institutions directory, above this facade.
func (f *Facade) GetInstitutions(ctx context.Context, tag Provider, req InstitutionsRequest) ([]Institution, error) {
	a, err := f.adapter(tag)
	if err != nil {
		return nil, err
	}
	return observe(f, tag, "get_institutions", func() ([]Institution, error) {
		return a.GetInstitutions(ctx, req)
	})
}

// GetConnectionStatus recomputes the connected/disconnected state of one
// consent grant from vendor session state.
func (f *Facade) GetConnectionStatus(ctx context.Context, tag Provider, ref string) (ConnectionStatus, error) {
	a, err := f.adapter(tag)
	if err != nil {
		return ConnectionStatus{}, err
	}
	return observe(f, tag, "get_connection_status", func() (ConnectionStatus, error) {
		return a.GetConnectionStatus(ctx, ref)
	})
}

// DeleteConnection is best-effort revocation of a consent grant.
func (f *Facade) DeleteConnection(ctx context.Context, tag Provider, ref string) error {
	a, err := f.adapter(tag)
	if err != nil {
		return err
	}
	_, err = observe(f, tag, "delete_connection", func() (struct{}, error) {
		return struct{}{}, a.DeleteConnection(ctx, ref)
	})
	return err
}

// DeleteAccounts is best-effort revocation of the accounts behind a grant.
func (f *Facade) DeleteAccounts(ctx context.Context, tag Provider, ref string) error {
	a, err := f.adapter(tag)
	if err != nil {
		return err
	}
	_, err = observe(f, tag, "delete_accounts", func() (struct{}, error) {
		return struct{}{}, a.DeleteAccounts(ctx, ref)
	})
	return err
}

// HealthCheck probes every registered vendor concurrently and reports
// per-vendor reachability. An open breaker reports false without calling
// the vendor.
func (f *Facade) HealthCheck(ctx context.Context) map[Provider]bool {
	result := make(map[Provider]bool, len(f.adapters))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for tag, a := range f.adapters {
		wg.Add(1)
		go func(tag Provider, a Adapter) {
			defer wg.Done()
			_, err := f.breakers[tag].Execute(func() (interface{}, error) {
				return nil, a.HealthCheck(ctx)
			})
			if err != nil {
				f.log.WithError(err).Warnf("Facade.HealthCheck.%v unreachable", tag)
			}
			mu.Lock()
			result[tag] = err == nil
			mu.Unlock()
		}(tag, a)
	}

	wg.Wait()
	return result
}

// observe wraps one dispatched call with metrics and taxonomy-aware
// logging. Unknown vendor codes are logged with the raw code so the
// mapping table can grow.
func observe[T any](f *Facade, tag Provider, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	if f.metrics != nil {
		f.metrics.RecordRequest(string(tag), operation, time.Since(start), err)
	}
	if err != nil {
		entry := f.log.WithError(err).WithField("provider", tag)
		if be, ok := err.(*Error); ok && be.Code == ErrCodeUnknown && be.RawCode != "" {
			entry = entry.WithField("raw_code", be.RawCode)
		}
		entry.Errorf("Facade.%v.Error", operation)
	}
	return out, err
}
