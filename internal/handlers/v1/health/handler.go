package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/logging"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) map[banking.Provider]bool
}

type Handler struct {
	Facade healthChecker
}

func NewHandler(facade healthChecker) Handler {
	return Handler{Facade: facade}
}

// Handler probes every vendor and reports per-vendor reachability. The
// response is 200 as long as the service itself is up; a dead vendor is
// reported in the body, not the status code.
func (h *Handler) Handler(w http.ResponseWriter, req *http.Request, logData *logging.LogData) error {
	if req.Method != "GET" {
		w.WriteHeader(http.StatusBadRequest)
		return errors.New("health: method not GET")
	}

	result := h.Facade.HealthCheck(req.Context())

	body := make(map[string]bool, len(result))
	for tag, healthy := range result {
		body[string(tag)] = healthy
		logData.AddData(string(tag), healthy)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(body)
}
