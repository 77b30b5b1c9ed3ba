package connection

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// GetStatusBody is the request body for checking one consent grant.
type GetStatusBody struct {
	Provider string `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor to query"`
	Ref      string `json:"ref" minLength:"1" doc:"Vendor consent reference"`
}

// GetStatusInput is the Huma input for checking connection status.
type GetStatusInput struct {
	Body GetStatusBody
}

// GetStatusResponseBody is the response body for connection status.
type GetStatusResponseBody struct {
	Status string `json:"status" enum:"connected,disconnected" doc:"Whether the grant is still usable"`
}

// GetStatusOutput is the Huma output for connection status.
type GetStatusOutput struct {
	Body GetStatusResponseBody
}

// statusReader is the interface for recomputing connection state.
type statusReader interface {
	GetConnectionStatus(ctx context.Context, tag banking.Provider, ref string) (banking.ConnectionStatus, error)
}

// GetStatusHandler handles POST /v1/connection/status.
type GetStatusHandler struct {
	Facade statusReader
}

// NewGetStatusHandler creates a new GetStatusHandler.
func NewGetStatusHandler(facade statusReader) *GetStatusHandler {
	return &GetStatusHandler{Facade: facade}
}

// Register registers the connection status endpoint with the Huma API.
func (h *GetStatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-connection-status",
		Method:      http.MethodPost,
		Path:        "/v1/connection/status",
		Summary:     "Get connection status",
		Description: "Recomputes whether one vendor consent grant is still usable.",
		Tags:        []string{"Connections"},
	}, h.handle)
}

func (h *GetStatusHandler) handle(ctx context.Context, input *GetStatusInput) (*GetStatusOutput, error) {
	logData := logging.GetLogData(ctx)
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
	}

	status, err := h.Facade.GetConnectionStatus(ctx, banking.Provider(input.Body.Provider), input.Body.Ref)
	if err != nil {
		// A disconnected-class error is itself the answer here, not a
		// failure of the status check.
		if banking.IsDisconnected(err) {
			return &GetStatusOutput{Body: GetStatusResponseBody{Status: string(banking.Disconnected)}}, nil
		}
		return nil, providerError(err)
	}

	return &GetStatusOutput{Body: GetStatusResponseBody{Status: string(status.Status)}}, nil
}
