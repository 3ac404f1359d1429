// Package publish pins farm analysis documents to IPFS through Pinata,
// derives NFT metadata for them and verifies pinned content across
// public gateways.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPinataAPIURL = "https://api.pinata.cloud"

	// PinataGateway serves pinned content for display URLs.
	PinataGateway = "https://gateway.pinata.cloud"
)

// PinataCredentials authenticates against the Pinata API. A JWT takes
// precedence over the key/secret pair.
type PinataCredentials struct {
	JWT       string
	APIKey    string
	APISecret string
}

// Configured reports whether any usable credential is present.
func (c PinataCredentials) Configured() bool {
	return c.JWT != "" || c.APIKey != ""
}

// PinataClient pins JSON content via Pinata's pinning API.
type PinataClient struct {
	baseURL    string
	creds      PinataCredentials
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPinataClient creates a Pinata client. A nil logger is replaced
// with a no-op logger.
func NewPinataClient(creds PinataCredentials, logger *zap.Logger) *PinataClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinataClient{
		baseURL:    defaultPinataAPIURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// PinJSON pins a JSON document and returns its CID (v1).
func (c *PinataClient) PinJSON(ctx context.Context, content interface{}, name string) (string, error) {
	if !c.creds.Configured() {
		return "", errors.New("pinata credentials are not configured")
	}

	payload := map[string]interface{}{
		"pinataContent": content,
		"pinataMetadata": map[string]interface{}{
			"name": name,
			"keyvalues": map[string]string{
				"type":    "farm-analysis",
				"version": "1.0",
			},
		},
		"pinataOptions": map[string]interface{}{
			"cidVersion": 1,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.JWT)
	} else {
		req.Header.Set("pinata_api_key", c.creds.APIKey)
		req.Header.Set("pinata_secret_api_key", c.creds.APISecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("pinata returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	if result.IpfsHash == "" {
		return "", errors.New("pinata response carried no hash")
	}

	c.logger.Info("pinned document to ipfs",
		zap.String("name", name),
		zap.String("cid", result.IpfsHash))
	return result.IpfsHash, nil
}

// GatewayURL returns the public URL for a CID on the Pinata gateway.
func GatewayURL(cid string) string {
	return PinataGateway + "/ipfs/" + cid
}
