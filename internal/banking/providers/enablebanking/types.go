package enablebanking

// Wire shapes for the EnableBanking API. Only fields this layer reads.

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type session struct {
	Status   string   `json:"status"`
	Accounts []string `json:"accounts"`
	ASPSP    struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"aspsp"`
	Access struct {
		ValidUntil string `json:"valid_until"`
	} `json:"access"`
}

type amountValue struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type accountDetails struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Product   string `json:"product"`
	Currency  string `json:"currency"`
	AccountID struct {
		IBAN string `json:"iban"`
	} `json:"account_id"`
	AccountServicer struct {
		BICFI string `json:"bic_fi"`
	} `json:"account_servicer"`
	CashAccountType    string `json:"cash_account_type"`
	Usage              string `json:"usage"`
	IdentificationHash string `json:"identification_hash"`
}

type balanceRecord struct {
	Name          string      `json:"name"`
	BalanceAmount amountValue `json:"balance_amount"`
	BalanceType   string      `json:"balance_type"`
}

type balancesResponse struct {
	Balances []balanceRecord `json:"balances"`
}

type transaction struct {
	EntryReference       string      `json:"entry_reference"`
	TransactionAmount    amountValue `json:"transaction_amount"`
	CreditDebitIndicator string      `json:"credit_debit_indicator"`
	Status               string      `json:"status"`
	BookingDate          string      `json:"booking_date"`
	ValueDate            string      `json:"value_date"`
	RemittanceInformation []string   `json:"remittance_information"`
	ReferenceNumber      string      `json:"reference_number"`
	Creditor             *struct {
		Name string `json:"name"`
	} `json:"creditor"`
	Debtor *struct {
		Name string `json:"name"`
	} `json:"debtor"`
	BankTransactionCode *struct {
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"bank_transaction_code"`
	BalanceAfterTransaction *amountValue `json:"balance_after_transaction"`
}

type transactionsResponse struct {
	Transactions    []transaction `json:"transactions"`
	ContinuationKey string        `json:"continuation_key"`
}

type aspsp struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo"`
}

type aspspsResponse struct {
	ASPSPs []aspsp `json:"aspsps"`
}

type application struct {
	Name string `json:"name"`
}
