package enablebanking

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// assertionLifetime is the exp claim offset. The credential cache trims a
// further hour off, so a signed assertion is reused for roughly 23 hours.
const assertionLifetime = 24 * time.Hour

// parsePrivateKey accepts PKCS#1 and PKCS#8 PEM-encoded RSA keys.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("enablebanking: no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("enablebanking: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("enablebanking: private key is not RSA")
	}
	return key, nil
}

// signAssertion produces the RS256 JWT EnableBanking accepts in place of
// a bearer token: base64url(header).base64url(payload) signed with
// RSA-SHA256. kid carries the application id.
func signAssertion(applicationID string, key *rsa.PrivateKey, now time.Time) (string, error) {
	header := map[string]string{
		"typ": "JWT",
		"alg": "RS256",
		"kid": applicationID,
	}
	payload := map[string]any{
		"iss": "enablebanking.com",
		"aud": "api.enablebanking.com",
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	encode := base64.RawURLEncoding.EncodeToString
	signingInput := encode(headerJSON) + "." + encode(payloadJSON)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("enablebanking: sign assertion: %w", err)
	}

	return signingInput + "." + encode(signature), nil
}
