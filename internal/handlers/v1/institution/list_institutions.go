package institution

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// Institution is the API response model for a directory entry.
type Institution struct {
	ID       string `json:"id" doc:"Vendor institution identifier"`
	Name     string `json:"name" doc:"Institution display name"`
	Logo     string `json:"logo,omitempty" doc:"Logo URL from the logo store"`
	Provider string `json:"provider" doc:"Vendor the institution is reachable through"`
	Country  string `json:"country,omitempty" doc:"ISO-3166 country code"`
}

// ListInstitutionsInput is the Huma input for listing institutions.
type ListInstitutionsInput struct {
	CountryCode string `query:"countryCode" maxLength:"2" doc:"Optional ISO-3166 country filter"`
}

// ListInstitutionsResponseBody is the response body for the directory.
// Partial reports vendors that failed during the refresh; entries from
// healthy vendors are still returned.
type ListInstitutionsResponseBody struct {
	Institutions []Institution `json:"institutions" doc:"Directory entries sorted by name"`
	Partial      []string      `json:"partial,omitempty" doc:"Vendors that failed during this refresh"`
}

// ListInstitutionsOutput is the Huma output for listing institutions.
type ListInstitutionsOutput struct {
	Body ListInstitutionsResponseBody
}

// directoryLister is the interface for the cross-vendor directory.
type directoryLister interface {
	List(ctx context.Context, countryCode string) ([]banking.Institution, []error)
}

// ListInstitutionsHandler handles GET /v1/institutions.
type ListInstitutionsHandler struct {
	Directory directoryLister
}

// NewListInstitutionsHandler creates a new ListInstitutionsHandler.
func NewListInstitutionsHandler(directory directoryLister) *ListInstitutionsHandler {
	return &ListInstitutionsHandler{Directory: directory}
}

// Register registers the institutions endpoint with the Huma API.
func (h *ListInstitutionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-institutions",
		Method:      http.MethodGet,
		Path:        "/v1/institutions",
		Summary:     "List institutions",
		Description: "Returns the merged cross-vendor institution directory.",
		Tags:        []string{"Institutions"},
	}, h.handle)
}

func (h *ListInstitutionsHandler) handle(ctx context.Context, input *ListInstitutionsInput) (*ListInstitutionsOutput, error) {
	logData := logging.GetLogData(ctx)

	var stopTimer func()
	if logData != nil {
		stopTimer = logData.AddTiming("listInstitutionsMs")
	}
	institutions, failures := h.Directory.List(ctx, input.CountryCode)
	if stopTimer != nil {
		stopTimer()
	}

	if len(institutions) == 0 && len(failures) > 0 {
		return nil, huma.NewError(http.StatusBadGateway, "every vendor failed", failures...)
	}

	if logData != nil {
		logData.AddData("institutionCount", len(institutions))
		logData.AddData("vendorFailures", len(failures))
	}

	resp := ListInstitutionsResponseBody{
		Institutions: make([]Institution, len(institutions)),
	}
	for i, inst := range institutions {
		resp.Institutions[i] = Institution{
			ID:       inst.ID,
			Name:     inst.Name,
			Logo:     inst.Logo,
			Provider: string(inst.Provider),
			Country:  inst.Country,
		}
	}
	for _, err := range failures {
		resp.Partial = append(resp.Partial, err.Error())
	}

	return &ListInstitutionsOutput{Body: resp}, nil
}
