// Package balance selects the single "current" balance out of several
// vendor-reported balance records. Vendors tag records with ISO 20022
// balance types (interim booked, closing booked, interim available, ...)
// and may report the same account in more than one currency.
package balance

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

// Record is one vendor-reported balance with its ISO 20022 type tag.
type Record struct {
	Type     string
	Amount   decimal.Decimal
	Currency string
}

// Tier preference, highest priority first. Both the long-form and the
// four-letter ISO 20022 codes appear on the wire depending on the vendor.
var tiers = [][]string{
	{"interimbooked", "itbd", "information", "info"},
	{"closingbooked", "clbd", "openingbooked", "opbd"},
	{"interimavailable", "itav"},
	{"expected", "xpcd"},
}

func normalizeType(t string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), "_", ""))
}

func tierOf(t string) int {
	n := normalizeType(t)
	for i, codes := range tiers {
		for _, code := range codes {
			if n == code {
				return i
			}
		}
	}
	return -1
}

// Resolve returns the record to treat as "current", and false for empty
// input. Callers must treat "no balance" as a valid, reportable state.
//
// Within the winning tier, a record matching the preferred currency wins;
// when the preferred-currency hint is itself unresolved the hint is
// ignored and the largest absolute magnitude wins instead.
func Resolve(records []Record, preferredCurrency string) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}

	for tier := range tiers {
		var candidates []Record
		for _, r := range records {
			if tierOf(r.Type) == tier {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		return pick(candidates, preferredCurrency), true
	}

	// No record matched any tier: first preferred-currency record, else
	// the first record overall.
	if banking.CurrencyResolved(preferredCurrency) {
		for _, r := range records {
			if sameCurrency(r.Currency, preferredCurrency) {
				return r, true
			}
		}
	}
	return records[0], true
}

func pick(candidates []Record, preferredCurrency string) Record {
	if banking.CurrencyResolved(preferredCurrency) {
		for _, r := range candidates {
			if sameCurrency(r.Currency, preferredCurrency) {
				return r
			}
		}
	}

	best := candidates[0]
	for _, r := range candidates[1:] {
		if r.Amount.Abs().GreaterThan(best.Amount.Abs()) {
			best = r
		}
	}
	return best
}

func sameCurrency(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
