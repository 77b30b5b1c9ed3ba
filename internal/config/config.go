package config

import (
	"os"
)

// Config carries everything the process needs from its environment.
// Vendor secrets live here and must never be logged.
type Config struct {
	Port string

	PlaidBaseURL  string
	PlaidClientID string
	PlaidSecret   string

	TellerBaseURL  string
	TellerCertFile string
	TellerKeyFile  string

	GoCardlessBaseURL   string
	GoCardlessSecretID  string
	GoCardlessSecretKey string

	EnableBankingBaseURL string
	EnableBankingAppID   string
	EnableBankingKeyFile string

	RedisAddress string
	LogoBucket   string
}

func ProcessEnvironmentVariables() (*Config, error) {
	// Defaults target the vendors' sandbox environments
	env := Config{
		Port:                 "8080",
		PlaidBaseURL:         "https://sandbox.plaid.com",
		TellerBaseURL:        "https://api.teller.io",
		GoCardlessBaseURL:    "https://bankaccountdata.gocardless.com",
		EnableBankingBaseURL: "https://api.enablebanking.com",
	}

	overrides := map[string]*string{
		"PORT": &env.Port,
		"PLAID_BASE_URL": &env.PlaidBaseURL,
		"PLAID_CLIENT_ID": &env.PlaidClientID,
		"PLAID_SECRET": &env.PlaidSecret,
		"TELLER_BASE_URL": &env.TellerBaseURL,
		"TELLER_CERT_FILE": &env.TellerCertFile,
		"TELLER_KEY_FILE": &env.TellerKeyFile,
		"GOCARDLESS_BASE_URL": &env.GoCardlessBaseURL,
		"GOCARDLESS_SECRET_ID": &env.GoCardlessSecretID,
		"GOCARDLESS_SECRET_KEY": &env.GoCardlessSecretKey,
		"ENABLEBANKING_BASE_URL": &env.EnableBankingBaseURL,
		"ENABLEBANKING_APP_ID": &env.EnableBankingAppID,
		"ENABLEBANKING_KEY_FILE": &env.EnableBankingKeyFile,
		"REDIS_ADDRESS": &env.RedisAddress,
		"LOGO_BUCKET": &env.LogoBucket,
	}

	for name, target := range overrides {
		if value := os.Getenv(name); len(value) != 0 {
			*target = value
		}
	}

	return &env, nil
}
