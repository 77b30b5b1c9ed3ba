// Package reconcile re-matches previously stored accounts to a vendor's
// refreshed account list after the user re-authorizes a connection.
// Vendors reissue account ids freely on re-auth, so matching leans on
// stable signals instead: resource ids, IBANs, and transaction overlap.
//
// The reconciler only ever proposes; applying a match is the caller's
// decision.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/bank-bridge/internal/banking"
)

// Confidence grades a proposed pairing.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// StoredAccount is the persisted side of a pairing, supplied by the
// account store collaborator together with its recent transactions.
type StoredAccount struct {
	ID           string
	Name         string
	Currency     string
	Type         banking.AccountType
	IBAN         string
	ResourceID   string
	Transactions []banking.Transaction
}

// Candidate is the vendor side of a pairing: a freshly fetched account
// and its recent transactions.
type Candidate struct {
	Account      banking.Account
	Transactions []banking.Transaction
}

// AccountStore is the persisted-account collaborator: it serves the
// stored side of a reconnection, including recent transactions for
// overlap matching. Implemented by the caller, not this layer.
type AccountStore interface {
	StoredAccounts(ctx context.Context, connectionID string) ([]StoredAccount, error)
}

// ReconcileConnection loads the stored side of connectionID from store
// and matches it against the refreshed vendor set.
func ReconcileConnection(ctx context.Context, store AccountStore, connectionID string, fresh []Candidate) (Result, error) {
	stored, err := store.StoredAccounts(ctx, connectionID)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: load stored accounts for %s: %w", connectionID, err)
	}
	return Reconcile(stored, fresh), nil
}

// Signal is one independent matching signal. Hard signals veto high
// confidence when they fail; soft signals only contribute to the score.
// Neutral signals (unknowable on this pair) are excluded from scoring.
type Signal struct {
	Name    string
	Pass    bool
	Neutral bool
	Hard    bool
}

// Proposal is the remediation required to adopt a match: the field
// updates a caller would apply to the stored account. Never auto-applied.
type Proposal struct {
	ProposalID      string
	StoredAccountID string
	VendorAccountID string
	ResourceID      string
	Name            string
	IBAN            string
}

// Match pairs one stored account with one vendor account.
type Match struct {
	Stored     StoredAccount
	Vendor     banking.Account
	Confidence Confidence
	Signals    []Signal
	Proposal   Proposal
}

// Result partitions the two account sets after matching.
type Result struct {
	Matched []Match
	Stale   []StoredAccount
	New     []banking.Account

	// Diagnosis explains each stale account in caller-actionable terms.
	Diagnosis []string
}

// Reconcile matches stored accounts against the refreshed vendor set.
func Reconcile(stored []StoredAccount, fresh []Candidate) Result {
	var result Result
	matchedStored := make(map[string]bool, len(stored))
	matchedFresh := make(map[string]bool, len(fresh))

	// Tier 1: the vendor's stable resource identifier.
	exactTier(stored, fresh, matchedStored, matchedFresh, &result, "resource_id", func(s StoredAccount, c Candidate) bool {
		return s.ResourceID != "" && s.ResourceID == c.Account.ResourceID
	})

	// Tier 2: IBAN.
	exactTier(stored, fresh, matchedStored, matchedFresh, &result, "iban", func(s StoredAccount, c Candidate) bool {
		return s.IBAN != "" && strings.EqualFold(s.IBAN, c.Account.IBAN)
	})

	// Tier 3: fuzzy multi-signal scoring over the remainder.
	remainingStored := 0
	remainingFresh := 0
	for _, s := range stored {
		if !matchedStored[s.ID] {
			remainingStored++
		}
	}
	for _, c := range fresh {
		if !matchedFresh[c.Account.ID] {
			remainingFresh++
		}
	}
	onlyPairLeft := remainingStored == 1 && remainingFresh == 1

	for _, c := range fresh {
		if matchedFresh[c.Account.ID] {
			continue
		}
		best := -1.0
		bestIdx := -1
		var bestSignals []Signal
		for i, s := range stored {
			if matchedStored[s.ID] {
				continue
			}
			signals := evaluate(s, c)
			score := scoreOf(signals)
			if score > best {
				best = score
				bestIdx = i
				bestSignals = signals
			}
		}
		if bestIdx < 0 || best <= 0 {
			continue
		}

		s := stored[bestIdx]
		confidence := grade(bestSignals, onlyPairLeft)
		if confidence == ConfidenceLow && !onlyPairLeft {
			// A low-grade fuzzy pairing is noise, not a proposal.
			continue
		}
		matchedStored[s.ID] = true
		matchedFresh[c.Account.ID] = true
		result.Matched = append(result.Matched, buildMatch(s, c, confidence, bestSignals))
	}

	for _, s := range stored {
		if !matchedStored[s.ID] {
			result.Stale = append(result.Stale, s)
			result.Diagnosis = append(result.Diagnosis, diagnose(s, fresh))
		}
	}
	for _, c := range fresh {
		if !matchedFresh[c.Account.ID] {
			result.New = append(result.New, c.Account)
		}
	}
	return result
}

func exactTier(stored []StoredAccount, fresh []Candidate, matchedStored, matchedFresh map[string]bool, result *Result, signal string, equal func(StoredAccount, Candidate) bool) {
	for _, c := range fresh {
		if matchedFresh[c.Account.ID] {
			continue
		}
		for _, s := range stored {
			if matchedStored[s.ID] {
				continue
			}
			if !equal(s, c) {
				continue
			}
			matchedStored[s.ID] = true
			matchedFresh[c.Account.ID] = true
			result.Matched = append(result.Matched, buildMatch(s, c, ConfidenceHigh, []Signal{
				{Name: signal, Pass: true, Hard: true},
			}))
			break
		}
	}
}

func evaluate(s StoredAccount, c Candidate) []Signal {
	signals := []Signal{
		{Name: "type", Pass: s.Type == c.Account.Type, Hard: true},
		currencySignal(s.Currency, c.Account.Currency),
		ibanSignal(s.IBAN, c.Account.IBAN),
		nameSignal(s.Name, c.Account.Name),
		overlapSignal(s.Transactions, c.Transactions),
	}
	return signals
}

// currencySignal treats an unresolved currency on either side as "not a
// conflict": it can never fail the pairing, only abstain.
func currencySignal(a, b string) Signal {
	if !banking.CurrencyResolved(a) || !banking.CurrencyResolved(b) {
		return Signal{Name: "currency", Neutral: true, Hard: true}
	}
	return Signal{Name: "currency", Pass: strings.EqualFold(a, b), Hard: true}
}

func ibanSignal(a, b string) Signal {
	if a == "" || b == "" {
		return Signal{Name: "iban", Neutral: true, Hard: true}
	}
	return Signal{Name: "iban", Pass: strings.EqualFold(a, b), Hard: true}
}

func nameSignal(a, b string) Signal {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return Signal{Name: "name", Neutral: true}
	}
	if a == b {
		return Signal{Name: "name", Pass: true}
	}

	tokens := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		tokens[t] = true
	}
	shared := 0
	for _, t := range strings.Fields(b) {
		if tokens[t] {
			shared++
		}
	}
	return Signal{Name: "name", Pass: shared > 0}
}

// overlapSignal is the strongest fuzzy signal: shared transactions by id,
// or by date+amount fingerprint when ids differ across the re-auth.
func overlapSignal(stored, fresh []banking.Transaction) Signal {
	if len(stored) == 0 || len(fresh) == 0 {
		return Signal{Name: "transactions", Neutral: true}
	}

	ids := make(map[string]bool, len(stored))
	prints := make(map[string]bool, len(stored))
	for _, t := range stored {
		ids[t.ID] = true
		prints[fingerprint(t)] = true
	}

	shared := 0
	for _, t := range fresh {
		if ids[t.ID] || prints[fingerprint(t)] {
			shared++
		}
	}

	smaller := len(stored)
	if len(fresh) < smaller {
		smaller = len(fresh)
	}
	return Signal{Name: "transactions", Pass: shared*2 >= smaller && shared > 0}
}

func fingerprint(t banking.Transaction) string {
	return t.Date.Format("2006-01-02") + "|" + t.Amount.Round(2).String()
}

func scoreOf(signals []Signal) float64 {
	evaluated := 0
	passed := 0
	for _, s := range signals {
		if s.Neutral {
			continue
		}
		evaluated++
		if s.Pass {
			passed++
			if s.Name == "transactions" {
				// Transaction overlap counts double; it is the
				// strongest independent signal.
				passed++
				evaluated++
			}
		} else if s.Hard {
			return 0
		}
	}
	if evaluated == 0 {
		return 0
	}
	return float64(passed) / float64(evaluated)
}

// grade applies the confidence policy: a failing hard signal always
// forces low; the lone stale/new pair with no hard conflict is high;
// strong transaction overlap with nothing failing is high; everything
// else grades on the passing fraction.
func grade(signals []Signal, onlyPairLeft bool) Confidence {
	txOverlap := false
	anyFail := false
	for _, s := range signals {
		if s.Neutral {
			continue
		}
		if !s.Pass {
			anyFail = true
			if s.Hard {
				return ConfidenceLow
			}
		}
		if s.Name == "transactions" && s.Pass {
			txOverlap = true
		}
	}

	if onlyPairLeft {
		return ConfidenceHigh
	}
	if txOverlap && !anyFail {
		return ConfidenceHigh
	}
	if score := scoreOf(signals); score >= 0.5 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

func buildMatch(s StoredAccount, c Candidate, confidence Confidence, signals []Signal) Match {
	name := s.Name
	if c.Account.Name != "" {
		name = c.Account.Name
	}
	iban := s.IBAN
	if c.Account.IBAN != "" {
		iban = c.Account.IBAN
	}
	return Match{
		Stored:     s,
		Vendor:     c.Account,
		Confidence: confidence,
		Signals:    signals,
		Proposal: Proposal{
			ProposalID:      uuid.Must(uuid.NewV4()).String(),
			StoredAccountID: s.ID,
			VendorAccountID: c.Account.ID,
			ResourceID:      c.Account.ResourceID,
			Name:            name,
			IBAN:            iban,
		},
	}
}

func diagnose(s StoredAccount, fresh []Candidate) string {
	for _, c := range fresh {
		if s.Type == c.Account.Type && currencySignal(s.Currency, c.Account.Currency).Pass {
			return fmt.Sprintf("stored account %s (%s) has a same-type vendor candidate %s but no matching identity signal; likely renamed or renumbered at the bank", s.ID, s.Name, c.Account.ID)
		}
	}
	if len(fresh) == 0 {
		return fmt.Sprintf("stored account %s (%s): vendor returned no accounts; the user may have deselected every account during re-authorization", s.ID, s.Name)
	}
	return fmt.Sprintf("stored account %s (%s) has no vendor counterpart; the user likely deselected it during re-authorization", s.ID, s.Name)
}
