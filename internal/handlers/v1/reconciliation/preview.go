package reconciliation

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/reconcile"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// StoredAccount is the caller's persisted view of an account, supplied
// for matching against the vendor's refreshed list.
type StoredAccount struct {
	ID           string              `json:"id" minLength:"1" doc:"Caller's account identifier"`
	Name         string              `json:"name,omitempty" doc:"Stored display name"`
	Currency     string              `json:"currency,omitempty" doc:"Stored ISO-4217 currency"`
	Type         string              `json:"type" enum:"depository,credit,loan" doc:"Stored account type"`
	IBAN         string              `json:"iban,omitempty" doc:"Stored IBAN"`
	ResourceID   string              `json:"resourceId,omitempty" doc:"Stored vendor stable handle"`
	Transactions []StoredTransaction `json:"transactions,omitempty" doc:"Recent transactions for overlap matching"`
}

// StoredTransaction carries just enough of a stored transaction to match
// by id or by date+amount fingerprint.
type StoredTransaction struct {
	ID     string `json:"id,omitempty" doc:"Stored transaction identifier"`
	Date   string `json:"date" format:"date" doc:"Booking date, YYYY-MM-DD"`
	Amount string `json:"amount" doc:"Signed decimal amount"`
}

// PreviewBody is the request body for a reconciliation preview.
type PreviewBody struct {
	Provider       string          `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor to refresh from"`
	Ref            string          `json:"ref" minLength:"1" doc:"Re-authorized vendor consent reference"`
	StoredAccounts []StoredAccount `json:"storedAccounts" doc:"Previously persisted accounts to re-match"`
}

// PreviewInput is the Huma input for a reconciliation preview.
type PreviewInput struct {
	Body PreviewBody
}

// MatchModel is one proposed pairing in the preview response.
type MatchModel struct {
	StoredAccountID string   `json:"storedAccountId" doc:"Caller's account identifier"`
	VendorAccountID string   `json:"vendorAccountId" doc:"Vendor account matched against it"`
	Confidence      string   `json:"confidence" enum:"high,medium,low" doc:"Confidence grade for the pairing"`
	Signals         []string `json:"signals" doc:"Names of the signals that passed"`
	ProposalID      string   `json:"proposalId" doc:"Identifier for this proposal"`
	ProposedName    string   `json:"proposedName,omitempty" doc:"Name the stored account would take"`
	ProposedIBAN    string   `json:"proposedIban,omitempty" doc:"IBAN the stored account would take"`
	ProposedRefID   string   `json:"proposedResourceId,omitempty" doc:"Resource id the stored account would take"`
}

// PreviewResponseBody partitions the reconciliation outcome. Nothing in
// it is applied; the caller decides what to adopt.
type PreviewResponseBody struct {
	Matches   []MatchModel `json:"matches" doc:"Proposed pairings"`
	Stale     []string     `json:"stale,omitempty" doc:"Stored account ids with no vendor counterpart"`
	New       []string     `json:"new,omitempty" doc:"Vendor account ids with no stored counterpart"`
	Diagnosis []string     `json:"diagnosis,omitempty" doc:"Explanation per stale account"`
}

// PreviewOutput is the Huma output for a reconciliation preview.
type PreviewOutput struct {
	Body PreviewResponseBody
}

// accountFetcher is the facade surface the preview needs.
type accountFetcher interface {
	GetAccounts(ctx context.Context, tag banking.Provider, req banking.AccountsRequest) ([]banking.Account, error)
	GetTransactions(ctx context.Context, tag banking.Provider, req banking.TransactionsRequest) ([]banking.Transaction, error)
}

// PreviewHandler handles POST /v1/reconcile/preview.
type PreviewHandler struct {
	Facade accountFetcher
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(facade accountFetcher) *PreviewHandler {
	return &PreviewHandler{Facade: facade}
}

// Register registers the reconciliation preview endpoint with the Huma API.
func (h *PreviewHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-reconciliation",
		Method:      http.MethodPost,
		Path:        "/v1/reconcile/preview",
		Summary:     "Preview reconciliation",
		Description: "Re-matches stored accounts against a re-authorized connection and proposes pairings.",
		Tags:        []string{"Reconciliation"},
	}, h.handle)
}

func (h *PreviewHandler) handle(ctx context.Context, input *PreviewInput) (*PreviewOutput, error) {
	logData := logging.GetLogData(ctx)
	tag := banking.Provider(input.Body.Provider)

	stored, err := parseStoredAccounts(input.Body.StoredAccounts)
	if err != nil {
		return nil, err
	}

	var stopTimer func()
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
		stopTimer = logData.AddTiming("previewReconciliationMs")
	}
	fresh, err := h.fetchCandidates(ctx, tag, input.Body.Ref)
	if stopTimer != nil {
		stopTimer()
	}
	if err != nil {
		return nil, providerError(err)
	}

	result := reconcile.Reconcile(stored, fresh)

	if logData != nil {
		logData.AddData("matched", len(result.Matched))
		logData.AddData("stale", len(result.Stale))
		logData.AddData("new", len(result.New))
	}

	resp := PreviewResponseBody{
		Matches:   make([]MatchModel, len(result.Matched)),
		Diagnosis: result.Diagnosis,
	}
	for i, m := range result.Matched {
		model := MatchModel{
			StoredAccountID: m.Proposal.StoredAccountID,
			VendorAccountID: m.Proposal.VendorAccountID,
			Confidence:      string(m.Confidence),
			ProposalID:      m.Proposal.ProposalID,
			ProposedName:    m.Proposal.Name,
			ProposedIBAN:    m.Proposal.IBAN,
			ProposedRefID:   m.Proposal.ResourceID,
		}
		for _, sig := range m.Signals {
			if sig.Pass {
				model.Signals = append(model.Signals, sig.Name)
			}
		}
		resp.Matches[i] = model
	}
	for _, s := range result.Stale {
		resp.Stale = append(resp.Stale, s.ID)
	}
	for _, a := range result.New {
		resp.New = append(resp.New, a.ID)
	}

	return &PreviewOutput{Body: resp}, nil
}

// fetchCandidates pulls the refreshed accounts and a recent transaction
// window per account for overlap matching.
func (h *PreviewHandler) fetchCandidates(ctx context.Context, tag banking.Provider, ref string) ([]reconcile.Candidate, error) {
	accounts, err := h.Facade.GetAccounts(ctx, tag, banking.AccountsRequest{Ref: ref})
	if err != nil {
		return nil, err
	}

	candidates := make([]reconcile.Candidate, len(accounts))
	for i, acc := range accounts {
		transactions, err := h.Facade.GetTransactions(ctx, tag, banking.TransactionsRequest{
			AccountID:   acc.ID,
			AccountType: acc.Type,
			Latest:      true,
			AccessToken: ref,
		})
		if err != nil {
			// Overlap is an optional signal; a transaction fetch failure
			// degrades the match quality but not the preview.
			transactions = nil
		}
		candidates[i] = reconcile.Candidate{Account: acc, Transactions: transactions}
	}
	return candidates, nil
}

func parseStoredAccounts(in []StoredAccount) ([]reconcile.StoredAccount, error) {
	out := make([]reconcile.StoredAccount, len(in))
	for i, sa := range in {
		stored := reconcile.StoredAccount{
			ID:         sa.ID,
			Name:       sa.Name,
			Currency:   sa.Currency,
			Type:       banking.AccountType(sa.Type),
			IBAN:       sa.IBAN,
			ResourceID: sa.ResourceID,
		}
		for _, tx := range sa.Transactions {
			date, err := time.Parse("2006-01-02", tx.Date)
			if err != nil {
				return nil, huma.NewError(http.StatusBadRequest, "invalid stored transaction date", err)
			}
			amount, err := decimal.NewFromString(tx.Amount)
			if err != nil {
				return nil, huma.NewError(http.StatusBadRequest, "invalid stored transaction amount", err)
			}
			stored.Transactions = append(stored.Transactions, banking.Transaction{
				ID:     tx.ID,
				Date:   date,
				Amount: amount,
			})
		}
		out[i] = stored
	}
	return out, nil
}

// providerError maps the provider error taxonomy onto HTTP statuses.
func providerError(err error) error {
	switch banking.CodeOf(err) {
	case banking.ErrCodeDisconnected:
		return huma.NewError(http.StatusUnauthorized, "connection requires re-authorization", err)
	case banking.ErrCodeRateLimited:
		return huma.NewError(http.StatusTooManyRequests, "vendor rate limit exceeded", err)
	default:
		return huma.NewError(http.StatusBadGateway, "vendor request failed", err)
	}
}
