// Package providers constructs the vendor adapters behind one factory so
// calling code never switches on vendor conditionals.
package providers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/enablebanking"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/gocardless"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/plaid"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/teller"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

// Configs bundles the per-vendor configuration injected at composition.
type Configs struct {
	Plaid         plaid.Config
	Teller        teller.Config
	GoCardless    gocardless.Config
	EnableBanking enablebanking.Config
}

// Deps are the shared collaborators every adapter may use.
type Deps struct {
	Credentials *credentials.Cache
	Log         *logrus.Logger
	Metrics     *metrics.Collector
}

// New builds the adapter for one provider tag.
func New(tag banking.Provider, cfgs Configs, deps Deps) (banking.Adapter, error) {
	switch tag {
	case banking.ProviderPlaid:
		return plaid.New(cfgs.Plaid, deps.Log, deps.Metrics), nil
	case banking.ProviderTeller:
		return teller.New(cfgs.Teller, deps.Log, deps.Metrics), nil
	case banking.ProviderGoCardless:
		return gocardless.New(cfgs.GoCardless, deps.Credentials, deps.Log, deps.Metrics), nil
	case banking.ProviderEnableBanking:
		return enablebanking.New(cfgs.EnableBanking, deps.Credentials, deps.Log, deps.Metrics)
	default:
		return nil, fmt.Errorf("providers: unknown provider %q", tag)
	}
}

// NewAll builds every supported adapter keyed by tag.
func NewAll(cfgs Configs, deps Deps) (map[banking.Provider]banking.Adapter, error) {
	adapters := make(map[banking.Provider]banking.Adapter)
	for _, tag := range banking.Providers() {
		adapter, err := New(tag, cfgs, deps)
		if err != nil {
			return nil, err
		}
		adapters[tag] = adapter
	}
	return adapters, nil
}
