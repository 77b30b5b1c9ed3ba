package gocardless

// Wire shapes for the GoCardless bank account data API (Nordigen
// lineage). Only the fields this layer reads are declared.

type tokenResponse struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int    `json:"refresh_expires"`
}

type apiError struct {
	Summary    string `json:"summary"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

type requisition struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	InstitutionID string   `json:"institution_id"`
	Agreement     string   `json:"agreement"`
	Accounts      []string `json:"accounts"`
}

type agreement struct {
	ID                 string `json:"id"`
	Accepted           string `json:"accepted"`
	AccessValidForDays int    `json:"access_valid_for_days"`
}

type amountValue struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type accountDetails struct {
	Account struct {
		ResourceID      string `json:"resourceId"`
		IBAN            string `json:"iban"`
		BIC             string `json:"bic"`
		Currency        string `json:"currency"`
		Name            string `json:"name"`
		Product         string `json:"product"`
		OwnerName       string `json:"ownerName"`
		CashAccountType string `json:"cashAccountType"`
	} `json:"account"`
}

type balanceRecord struct {
	BalanceAmount amountValue `json:"balanceAmount"`
	BalanceType   string      `json:"balanceType"`
	ReferenceDate string      `json:"referenceDate"`
}

type balancesResponse struct {
	Balances []balanceRecord `json:"balances"`
}

type transaction struct {
	TransactionID                     string       `json:"transactionId"`
	InternalTransactionID             string       `json:"internalTransactionId"`
	EntryReference                    string       `json:"entryReference"`
	BookingDate                       string       `json:"bookingDate"`
	ValueDate                         string       `json:"valueDate"`
	TransactionAmount                 amountValue  `json:"transactionAmount"`
	CreditorName                      string       `json:"creditorName"`
	DebtorName                        string       `json:"debtorName"`
	RemittanceInformationUnstructured string       `json:"remittanceInformationUnstructured"`
	RemittanceInformationStructured   string       `json:"remittanceInformationStructured"`
	RemittanceInformationArray        []string     `json:"remittanceInformationUnstructuredArray"`
	AdditionalInformation             string       `json:"additionalInformation"`
	ProprietaryBankTransactionCode    string       `json:"proprietaryBankTransactionCode"`
	BalanceAfterTransaction           *struct {
		BalanceAmount amountValue `json:"balanceAmount"`
	} `json:"balanceAfterTransaction"`
}

type transactionsResponse struct {
	Transactions struct {
		Booked  []transaction `json:"booked"`
		Pending []transaction `json:"pending"`
	} `json:"transactions"`
}

type institution struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Logo                 string   `json:"logo"`
	Countries            []string `json:"countries"`
	TransactionTotalDays string   `json:"transaction_total_days"`
}
