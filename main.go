package main

import (
	"context"
	"crypto/tls"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/api"
	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/banking/institutions"
	"github.com/carson-networks/bank-bridge/internal/banking/providers"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/enablebanking"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/gocardless"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/plaid"
	"github.com/carson-networks/bank-bridge/internal/banking/providers/teller"
	"github.com/carson-networks/bank-bridge/internal/cache"
	"github.com/carson-networks/bank-bridge/internal/cache/memory"
	"github.com/carson-networks/bank-bridge/internal/cache/redis"
	"github.com/carson-networks/bank-bridge/internal/config"
	"github.com/carson-networks/bank-bridge/internal/logging"
	"github.com/carson-networks/bank-bridge/internal/logostore"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

func main() {
	logger := logging.SetupLogging()
	logrus.Info("bank-bridge starting")

	envConfig, err := config.ProcessEnvironmentVariables()
	if err != nil {
		logrus.WithError(err).Fatal("config.ProcessEnvironmentVariables")
		return
	}

	collector := metrics.NewCollector()

	var store cache.Store
	if envConfig.RedisAddress != "" {
		store, err = redis.New(envConfig.RedisAddress, "bank-bridge")
		if err != nil {
			logrus.WithError(err).Fatal("redis.New")
			return
		}
	} else {
		store = memory.New(memory.Config{})
	}

	var logos logostore.Store
	if envConfig.LogoBucket != "" {
		logos, err = logostore.NewGCSStore(context.Background(), envConfig.LogoBucket)
		if err != nil {
			logrus.WithError(err).Fatal("logostore.NewGCSStore")
			return
		}
	}

	configs, err := vendorConfigs(envConfig)
	if err != nil {
		logrus.WithError(err).Fatal("main.vendorConfigs")
		return
	}

	adapters, err := providers.NewAll(configs, providers.Deps{
		Credentials: credentials.New(store),
		Log:         logger,
		Metrics:     collector,
	})
	if err != nil {
		logrus.WithError(err).Fatal("providers.NewAll")
		return
	}

	facade := banking.NewFacade(adapters, logger, collector)
	directory := institutions.New(adapters, store, logos, logger, collector)

	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		httpRest := api.Rest{
			Logger:    logger,
			Port:      envConfig.Port,
			Facade:    facade,
			Directory: directory,
			Metrics:   collector,
		}
		httpRest.Serve()
	}()

	wg.Wait()
}

// vendorConfigs loads the per-vendor credential material. Key files are
// read once at startup so a bad path fails fast.
func vendorConfigs(envConfig *config.Config) (providers.Configs, error) {
	configs := providers.Configs{
		Plaid: plaid.Config{
			ClientID: envConfig.PlaidClientID,
			Secret:   envConfig.PlaidSecret,
			BaseURL:  envConfig.PlaidBaseURL,
		},
		Teller: teller.Config{
			BaseURL: envConfig.TellerBaseURL,
		},
		GoCardless: gocardless.Config{
			SecretID:  envConfig.GoCardlessSecretID,
			SecretKey: envConfig.GoCardlessSecretKey,
			BaseURL:   envConfig.GoCardlessBaseURL,
		},
		EnableBanking: enablebanking.Config{
			ApplicationID: envConfig.EnableBankingAppID,
			BaseURL:       envConfig.EnableBankingBaseURL,
		},
	}

	if envConfig.TellerCertFile != "" {
		certificate, err := tls.LoadX509KeyPair(envConfig.TellerCertFile, envConfig.TellerKeyFile)
		if err != nil {
			return providers.Configs{}, err
		}
		configs.Teller.Certificate = &certificate
	}

	if envConfig.EnableBankingKeyFile != "" {
		key, err := os.ReadFile(envConfig.EnableBankingKeyFile)
		if err != nil {
			return providers.Configs{}, err
		}
		configs.EnableBanking.PrivateKey = key
	}

	return configs, nil
}
