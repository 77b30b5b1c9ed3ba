package enablebanking

import (
	"context"
	"crypto/rsa"
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
	defaultBaseURL = "https://api.enablebanking.com"

	credentialKey = "enablebanking:assertion"
)

// Config carries the application id and signing key, injected at
// construction and never logged.
type Config struct {
	ApplicationID string
	PrivateKey    []byte
	BaseURL       string
}

type client struct {
	cfg     Config
	key     *rsa.PrivateKey
	http    *http.Client
	creds   *credentials.Cache
	log     *logrus.Logger
	metrics *metrics.Collector
}

func newClient(cfg Config, creds *credentials.Cache, log *logrus.Logger, collector *metrics.Collector) (*client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &client{
		cfg:     cfg,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		log:     log,
		metrics: collector,
	}, nil
}

// assertion returns the cached signed JWT, re-signing only when the
// cached one has expired. Signing is computationally nontrivial, so the
// assertion is reused across calls while valid.
func (c *client) assertion(ctx context.Context) (string, error) {
	cred, err := c.creds.Acquire(ctx, credentialKey, func(ctx context.Context) (credentials.Credential, error) {
		now := time.Now()
		token, err := signAssertion(c.cfg.ApplicationID, c.key, now)
		if err != nil {
			return credentials.Credential{}, err
		}
		return credentials.Credential{
			Token:     token,
			IssuedAt:  now,
			ExpiresAt: now.Add(assertionLifetime - time.Hour),
		}, nil
	}, nil)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	err := ratelimit.Do(ctx, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, query, out)
	}, func() {
		if c.metrics != nil {
			c.metrics.RecordRateLimitRetry(string(banking.ProviderEnableBanking))
		}
	})

	// Rate limiting that survived every retry surfaces as taxonomy.
	var limited *ratelimit.Limited
	if errors.As(err, &limited) {
		return banking.NewError(banking.ProviderEnableBanking, banking.ErrCodeRateLimited, "", "rate limit retries exhausted")
	}
	return err
}

func (c *client) doOnce(ctx context.Context, method, path string, query url.Values, out any) error {
	token, err := c.assertion(ctx)
	if err != nil {
		return err
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if limited := ratelimit.FromResponse(resp); limited != nil {
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
		return fmt.Errorf("enablebanking: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *client) translateError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("http %d", status)
	}

	text := strings.ToLower(apiErr.Code + " " + apiErr.Message)
	switch {
	case status == http.StatusUnauthorized,
		strings.Contains(text, "session_expired"),
		strings.Contains(text, "expired"):
		return banking.NewError(banking.ProviderEnableBanking, banking.ErrCodeDisconnected, apiErr.Code, message)
	case strings.Contains(text, "already_authorized"), strings.Contains(text, "already authorized"):
		return banking.NewError(banking.ProviderEnableBanking, banking.ErrCodeAlreadyAuthorized, apiErr.Code, message)
	default:
		c.log.WithField("provider", banking.ProviderEnableBanking).
			WithField("raw_code", apiErr.Code).
			WithField("status", status).
			Warn("EnableBanking.translateError.unknown vendor code")
		return banking.NewError(banking.ProviderEnableBanking, banking.ErrCodeUnknown, apiErr.Code, message)
	}
}
