package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/banking/credentials"
	"github.com/carson-networks/bank-bridge/internal/banking/ratelimit"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

const (
	defaultBaseURL = "https://bankaccountdata.gocardless.com"

	// GoCardless reports seconds until the per-account success quota
	// resets in this header on 429 responses.
	rateLimitResetHeader = "HTTP_X_RATELIMIT_ACCOUNT_SUCCESS_RESET"

	// Access tokens live 24h, refresh tokens 30d. Cached TTLs are cut
	// one hour short of the vendor-declared expiry.
	tokenSafetyMargin = time.Hour

	credentialKey = "gocardless:token"
)

// Config carries the vendor secrets and endpoint, injected at
// construction and never logged.
type Config struct {
	SecretID  string
	SecretKey string
	BaseURL   string
}

type client struct {
	cfg     Config
	http    *http.Client
	creds   *credentials.Cache
	log     *logrus.Logger
	metrics *metrics.Collector
}

func newClient(cfg Config, creds *credentials.Cache, log *logrus.Logger, collector *metrics.Collector) *client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		log:     log,
		metrics: collector,
	}
}

func (c *client) token(ctx context.Context) (string, error) {
	cred, err := c.creds.Acquire(ctx, credentialKey, c.exchangeToken, c.refreshToken)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

func (c *client) exchangeToken(ctx context.Context) (credentials.Credential, error) {
	var resp tokenResponse
	body := map[string]string{"secret_id": c.cfg.SecretID, "secret_key": c.cfg.SecretKey}
	if err := c.doRaw(ctx, http.MethodPost, "/api/v2/token/new/", nil, body, "", &resp); err != nil {
		return credentials.Credential{}, err
	}
	return tokenCredential(resp), nil
}

func (c *client) refreshToken(ctx context.Context, refresh string) (credentials.Credential, error) {
	var resp tokenResponse
	body := map[string]string{"refresh": refresh}
	if err := c.doRaw(ctx, http.MethodPost, "/api/v2/token/refresh/", nil, body, "", &resp); err != nil {
		return credentials.Credential{}, err
	}
	if resp.Refresh == "" {
		// The refresh endpoint returns only a new access token; keep
		// the refresh credential we already hold.
		resp.Refresh = refresh
	}
	return tokenCredential(resp), nil
}

func tokenCredential(resp tokenResponse) credentials.Credential {
	now := time.Now()
	cred := credentials.Credential{
		Token:     resp.Access,
		Refresh:   resp.Refresh,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(resp.AccessExpires)*time.Second - tokenSafetyMargin),
	}
	if resp.RefreshExpires > 0 {
		cred.RefreshExpiresAt = now.Add(time.Duration(resp.RefreshExpires)*time.Second - tokenSafetyMargin)
	}
	return cred
}

// do issues one authenticated API call with rate-limit retries.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	err := ratelimit.Do(ctx, func(ctx context.Context) error {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}
		return c.doRaw(ctx, method, path, query, body, token, out)
	}, func() {
		if c.metrics != nil {
			c.metrics.RecordRateLimitRetry(string(banking.ProviderGoCardless))
		}
	})

	// Rate limiting that survived every retry surfaces as taxonomy.
	var limited *ratelimit.Limited
	if errors.As(err, &limited) {
		return banking.NewError(banking.ProviderGoCardless, banking.ErrCodeRateLimited, "", "rate limit retries exhausted")
	}
	return err
}

func (c *client) doRaw(ctx context.Context, method, path string, query url.Values, body any, token string, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if limited := ratelimit.FromResponse(resp, rateLimitResetHeader); limited != nil {
		return limited
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return c.translateError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gocardless: decode %s %s: %w", method, path, err)
	}
	return nil
}

// translateError maps vendor error payloads onto the canonical taxonomy
// at the adapter boundary.
func (c *client) translateError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	message := apiErr.Detail
	if message == "" {
		message = apiErr.Summary
	}
	if message == "" {
		message = fmt.Sprintf("http %d", status)
	}

	text := strings.ToLower(apiErr.Summary + " " + apiErr.Detail)
	switch {
	case strings.Contains(text, "expired"),
		strings.Contains(text, "suspended"),
		strings.Contains(text, "inactive"),
		status == http.StatusUnauthorized:
		return banking.NewError(banking.ProviderGoCardless, banking.ErrCodeDisconnected, apiErr.Summary, message)
	case status == http.StatusConflict:
		return banking.NewError(banking.ProviderGoCardless, banking.ErrCodeAlreadyAuthorized, apiErr.Summary, message)
	default:
		c.log.WithField("provider", banking.ProviderGoCardless).
			WithField("raw_code", apiErr.Summary).
			WithField("status", status).
			Warn("GoCardless.translateError.unknown vendor code")
		return banking.NewError(banking.ProviderGoCardless, banking.ErrCodeUnknown, apiErr.Summary, message)
	}
}
