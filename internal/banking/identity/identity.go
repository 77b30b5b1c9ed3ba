// Package identity derives the stable canonical id of a transaction. The
// id is the deduplication key used by the persistence layer: two fetches
// of an unchanged vendor event must produce the same id, and two distinct
// events differing only in one nullable field must never collide.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fundamentals is the ordered tuple hashed when a vendor supplies neither
// a unique transaction id nor an entry reference. Every field is included
// positionally even when empty; omitting empty fields would collide two
// transactions that legitimately differ only in which field is null.
type Fundamentals struct {
	BookingDate    string
	ValueDate      string
	Amount         string
	Currency       string
	CreditDebit    string
	Reference      string
	Remittance     string
	RunningBalance string
}

// Derive returns the canonical transaction id. Preference order: the
// vendor's own transaction id, then its entry/posting reference, then a
// deterministic hash over the fundamental values.
func Derive(vendorID, entryReference string, f Fundamentals) string {
	if id := strings.TrimSpace(vendorID); id != "" {
		return id
	}
	if ref := strings.TrimSpace(entryReference); ref != "" {
		return ref
	}
	return Hash(f)
}

// Hash computes the fallback id over the positionally-complete tuple.
func Hash(f Fundamentals) string {
	fields := []string{
		f.BookingDate,
		f.ValueDate,
		f.Amount,
		f.Currency,
		f.CreditDebit,
		f.Reference,
		f.Remittance,
		f.RunningBalance,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}
