package plaid

type apiError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type accountBalances struct {
	Available              *float64 `json:"available"`
	Current                *float64 `json:"current"`
	Limit                  *float64 `json:"limit"`
	ISOCurrencyCode        string   `json:"iso_currency_code"`
	UnofficialCurrencyCode string   `json:"unofficial_currency_code"`
}

type account struct {
	AccountID    string          `json:"account_id"`
	Balances     accountBalances `json:"balances"`
	Mask         string          `json:"mask"`
	Name         string          `json:"name"`
	OfficialName string          `json:"official_name"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
}

type item struct {
	ItemID        string    `json:"item_id"`
	InstitutionID string    `json:"institution_id"`
	Error         *apiError `json:"error"`
}

type accountsResponse struct {
	Accounts []account `json:"accounts"`
	Item     item      `json:"item"`
}

type transaction struct {
	TransactionID           string   `json:"transaction_id"`
	AccountID               string   `json:"account_id"`
	Amount                  float64  `json:"amount"`
	ISOCurrencyCode         string   `json:"iso_currency_code"`
	Date                    string   `json:"date"`
	AuthorizedDate          string   `json:"authorized_date"`
	Name                    string   `json:"name"`
	MerchantName            string   `json:"merchant_name"`
	Pending                 bool     `json:"pending"`
	PaymentChannel          string   `json:"payment_channel"`
	Category                []string `json:"category"`
	PersonalFinanceCategory *struct {
		Primary string `json:"primary"`
	} `json:"personal_finance_category"`
}

type transactionsSyncResponse struct {
	Added      []transaction `json:"added"`
	Modified   []transaction `json:"modified"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

type institution struct {
	InstitutionID string   `json:"institution_id"`
	Name          string   `json:"name"`
	Logo          string   `json:"logo"`
	CountryCodes  []string `json:"country_codes"`
}

type institutionsResponse struct {
	Institutions []institution `json:"institutions"`
	Total        int           `json:"total"`
}

type itemResponse struct {
	Item item `json:"item"`
}
