package teller

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type account struct {
	ID           string `json:"id"`
	EnrollmentID string `json:"enrollment_id"`
	Name         string `json:"name"`
	Currency     string `json:"currency"`
	Type         string `json:"type"`
	Subtype      string `json:"subtype"`
	LastFour     string `json:"last_four"`
	Status       string `json:"status"`
	Institution  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"institution"`
}

type balances struct {
	AccountID string `json:"account_id"`
	Available string `json:"available"`
	Ledger    string `json:"ledger"`
}

type transaction struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	Amount         string `json:"amount"`
	Date           string `json:"date"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	RunningBalance string `json:"running_balance"`
	Type           string `json:"type"`
	Details        struct {
		Category         string `json:"category"`
		ProcessingStatus string `json:"processing_status"`
		Counterparty     *struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"counterparty"`
	} `json:"details"`
}

type institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
