package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fundamentals() Fundamentals {
	return Fundamentals{
		BookingDate:    "2026-04-02",
		ValueDate:      "2026-04-03",
		Amount:         "-42.10",
		Currency:       "EUR",
		CreditDebit:    "DBIT",
		Reference:      "ref-1",
		Remittance:     "coffee",
		RunningBalance: "1204.55",
	}
}

func TestDerive_VendorIDWins(t *testing.T) {
	assert.Equal(t, "vendor-1", Derive("vendor-1", "entry-1", fundamentals()))
}

func TestDerive_EntryReferenceSecond(t *testing.T) {
	assert.Equal(t, "entry-1", Derive("", "entry-1", fundamentals()))
	assert.Equal(t, "entry-1", Derive("   ", "entry-1", fundamentals()))
}

func TestDerive_HashFallback(t *testing.T) {
	id := Derive("", "", fundamentals())
	assert.Len(t, id, 64)
	assert.Equal(t, Hash(fundamentals()), id)
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash(fundamentals()), Hash(fundamentals()))
}

func TestHash_NullFieldPositionMatters(t *testing.T) {
	// A value moving between adjacent nullable fields must change the id.
	a := Fundamentals{Reference: "x"}
	b := Fundamentals{Remittance: "x"}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHash_SingleFieldChangeChangesID(t *testing.T) {
	base := fundamentals()

	changed := base
	changed.Amount = "-42.11"
	assert.NotEqual(t, Hash(base), Hash(changed))

	changed = base
	changed.RunningBalance = ""
	assert.NotEqual(t, Hash(base), Hash(changed))
}
