package connection

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

// DeleteConnectionBody is the request body for revoking one consent grant.
type DeleteConnectionBody struct {
	Provider string `json:"provider" enum:"plaid,teller,gocardless,enablebanking" doc:"Vendor holding the grant"`
	Ref      string `json:"ref" minLength:"1" doc:"Vendor consent reference"`
}

// DeleteConnectionInput is the Huma input for revoking a connection.
type DeleteConnectionInput struct {
	Body DeleteConnectionBody
}

// DeleteConnectionResponseBody is the response body for revocation.
type DeleteConnectionResponseBody struct {
	Deleted bool `json:"deleted" doc:"Whether the vendor confirmed revocation"`
}

// DeleteConnectionOutput is the Huma output for revoking a connection.
type DeleteConnectionOutput struct {
	Body DeleteConnectionResponseBody
}

// connectionDeleter is the interface for revoking a grant at the vendor.
type connectionDeleter interface {
	DeleteConnection(ctx context.Context, tag banking.Provider, ref string) error
}

// DeleteConnectionHandler handles POST /v1/connection/delete.
type DeleteConnectionHandler struct {
	Facade connectionDeleter
}

// NewDeleteConnectionHandler creates a new DeleteConnectionHandler.
func NewDeleteConnectionHandler(facade connectionDeleter) *DeleteConnectionHandler {
	return &DeleteConnectionHandler{Facade: facade}
}

// Register registers the delete connection endpoint with the Huma API.
func (h *DeleteConnectionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "delete-connection",
		Method:      http.MethodPost,
		Path:        "/v1/connection/delete",
		Summary:     "Delete connection",
		Description: "Best-effort revocation of one vendor consent grant.",
		Tags:        []string{"Connections"},
	}, h.handle)
}

func (h *DeleteConnectionHandler) handle(ctx context.Context, input *DeleteConnectionInput) (*DeleteConnectionOutput, error) {
	logData := logging.GetLogData(ctx)
	if logData != nil {
		logData.AddData("provider", input.Body.Provider)
	}

	err := h.Facade.DeleteConnection(ctx, banking.Provider(input.Body.Provider), input.Body.Ref)
	if err != nil {
		// An already-dead grant counts as revoked.
		if banking.IsDisconnected(err) {
			return &DeleteConnectionOutput{Body: DeleteConnectionResponseBody{Deleted: true}}, nil
		}
		return nil, providerError(err)
	}

	return &DeleteConnectionOutput{Body: DeleteConnectionResponseBody{Deleted: true}}, nil
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
