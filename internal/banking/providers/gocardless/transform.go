package gocardless

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/balance"
	"github.com/carson-networks/bank-bridge/internal/banking/identity"
)

func mapAccountType(cashAccountType string) banking.AccountType {
	switch strings.ToUpper(strings.TrimSpace(cashAccountType)) {
	case "CARD":
		return banking.AccountTypeCredit
	case "LOAN", "LLSV":
		return banking.AccountTypeLoan
	default:
		// CACC, SVGS and friends are all depository.
		return banking.AccountTypeDepository
	}
}

func balanceRecords(records []balanceRecord) ([]balance.Record, error) {
	out := make([]balance.Record, 0, len(records))
	for _, r := range records {
		amount, err := decimal.NewFromString(r.BalanceAmount.Amount)
		if err != nil {
			return nil, fmt.Errorf("gocardless: parse balance amount %q: %w", r.BalanceAmount.Amount, err)
		}
		out = append(out, balance.Record{
			Type:     r.BalanceType,
			Amount:   amount,
			Currency: r.BalanceAmount.Currency,
		})
	}
	return out, nil
}

func mapAccount(requisitionID string, details accountDetails, records []balanceRecord, inst *institution, expiresAt *time.Time) (banking.Account, error) {
	parsed, err := balanceRecords(records)
	if err != nil {
		return banking.Account{}, err
	}

	accountType := mapAccountType(details.Account.CashAccountType)

	primary, _ := balance.Resolve(parsed, details.Account.Currency)
	currency := banking.ResolveCurrency(details.Account.Currency, primary.Currency, firstCurrency(parsed))

	name := details.Account.Name
	if name == "" {
		name = details.Account.Product
	}
	if name == "" {
		name = details.Account.OwnerName
	}

	resourceID := details.Account.ResourceID
	if resourceID == "" {
		resourceID = details.Account.IBAN
	}

	account := banking.Account{
		Name:         name,
		Currency:     currency,
		Type:         accountType,
		Provider:     banking.ProviderGoCardless,
		Balance:      banking.NormalizeCreditBalance(accountType, primary.Amount),
		ResourceID:   resourceID,
		IBAN:         details.Account.IBAN,
		BIC:          details.Account.BIC,
		EnrollmentID: requisitionID,
		ExpiresAt:    expiresAt,
	}
	if inst != nil {
		account.InstitutionID = inst.ID
	}
	return account, nil
}

func firstCurrency(records []balance.Record) string {
	for _, r := range records {
		if banking.CurrencyResolved(r.Currency) {
			return r.Currency
		}
	}
	return ""
}

func mapTransaction(t transaction, status banking.TransactionStatus, accountType banking.AccountType) (banking.Transaction, error) {
	amount, err := decimal.NewFromString(t.TransactionAmount.Amount)
	if err != nil {
		return banking.Transaction{}, fmt.Errorf("gocardless: parse transaction amount %q: %w", t.TransactionAmount.Amount, err)
	}

	var running *decimal.Decimal
	var runningText string
	if t.BalanceAfterTransaction != nil {
		parsed, err := decimal.NewFromString(t.BalanceAfterTransaction.BalanceAmount.Amount)
		if err == nil {
			running = &parsed
			runningText = t.BalanceAfterTransaction.BalanceAmount.Amount
		}
	}

	description := t.RemittanceInformationUnstructured
	if description == "" && len(t.RemittanceInformationArray) > 0 {
		description = strings.Join(t.RemittanceInformationArray, " ")
	}
	if description == "" {
		description = t.RemittanceInformationStructured
	}
	if description == "" {
		description = t.AdditionalInformation
	}

	creditDebit := "DBIT"
	if amount.IsPositive() {
		creditDebit = "CRDT"
	}

	// Several ASPSPs omit both transaction ids on booked entries and
	// everything on pending ones; the fundamentals hash keeps identity
	// stable either way.
	vendorID := t.InternalTransactionID
	if vendorID == "" {
		vendorID = t.TransactionID
	}
	id := identity.Derive(vendorID, t.EntryReference, identity.Fundamentals{
		BookingDate:    t.BookingDate,
		ValueDate:      t.ValueDate,
		Amount:         t.TransactionAmount.Amount,
		Currency:       t.TransactionAmount.Currency,
		CreditDebit:    creditDebit,
		Reference:      t.EntryReference,
		Remittance:     description,
		RunningBalance: runningText,
	})

	date, err := parseDate(t.BookingDate, t.ValueDate)
	if err != nil {
		return banking.Transaction{}, err
	}

	counterparty := t.CreditorName
	if amount.IsPositive() {
		counterparty = t.DebtorName
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
		Method:         mapMethod(t.ProprietaryBankTransactionCode),
		Description:    description,
	}, nil
}

func mapMethod(code string) banking.TransactionMethod {
	upper := strings.ToUpper(code)
	switch {
	case strings.Contains(upper, "CARD"):
		return banking.MethodCard
	case strings.Contains(upper, "TRANSFER"), strings.Contains(upper, "CREDIT"):
		return banking.MethodTransfer
	case strings.Contains(upper, "PAYMENT"), strings.Contains(upper, "DEBIT"):
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
		return time.Time{}, fmt.Errorf("gocardless: transaction has no booking or value date")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("gocardless: parse date %q: %w", raw, err)
	}
	return date, nil
}
