package api

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/institutions"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/account"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/connection"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/health"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/institution"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/reconciliation"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/status"
	"github.com/carson-networks/bank-bridge/internal/handlers/v1/transaction"
	"github.com/carson-networks/bank-bridge/internal/logging"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

type Rest struct {
	Logger    *logrus.Logger
	Port      string
	Facade    *banking.Facade
	Directory *institutions.Directory
	Metrics   *metrics.Collector
}

func (r *Rest) Serve() {
	mux := http.NewServeMux()

	statusHandler := status.NewHandler()
	healthHandler := health.NewHandler(r.Facade)

	mux.HandleFunc("/status", logging.LoggingWrapper("Status", r.Logger, statusHandler.Handler))
	mux.HandleFunc("/health", logging.LoggingWrapper("Health", r.Logger, healthHandler.Handler))
	mux.Handle("/metrics", r.Metrics.Handler())

	humaAPI := humago.New(mux, huma.DefaultConfig("bank-bridge", "1.0.0"))
	humaAPI.UseMiddleware(func(hctx huma.Context, next func(huma.Context)) {
		logData := logging.NewLogData(r.Logger)
		next(huma.WithContext(hctx, logging.WithLogData(hctx.Context(), logData)))
	})

	account.NewListAccountsHandler(r.Facade).Register(humaAPI)
	account.NewGetBalanceHandler(r.Facade).Register(humaAPI)
	transaction.NewListTransactionsHandler(r.Facade).Register(humaAPI)
	connection.NewGetStatusHandler(r.Facade).Register(humaAPI)
	connection.NewDeleteConnectionHandler(r.Facade).Register(humaAPI)
	institution.NewListInstitutionsHandler(r.Directory).Register(humaAPI)
	reconciliation.NewPreviewHandler(r.Facade).Register(humaAPI)

	server := http.Server{
		Addr:              ":" + r.Port,
		Handler:           mux,
		ReadTimeout:       time.Duration(30) * time.Second,
		WriteTimeout:      time.Duration(30) * time.Second,
		IdleTimeout:       time.Duration(10) * time.Second,
		ReadHeaderTimeout: time.Duration(10) * time.Second,
	}

	r.Logger.Info("HttpServer.Serve.listening")
	err := server.ListenAndServe()
	if err != nil {
		r.Logger.WithError(err).Error("HttpServer.Serve.listen error")
	}
	r.Logger.Info("HttpServer.Serve.shutting down")
}
