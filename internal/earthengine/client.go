package earthengine

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

	"go.uber.org/zap"
)

// Collection and dataset identifiers used across analyses.
const (
	Sentinel2Collection = "COPERNICUS/S2_SR_HARMONIZED"
	HansenDataset       = "UMD/hansen/global_forest_change_2024_v1_12"
)

// Client is the remote statistics provider every analysis consumes. All
// operations are idempotent round trips; callers wrap them with Retry.
type Client interface {
	// ReduceRegion aggregates pixel statistics over a geometry and
	// returns a band_reducer keyed mapping (e.g. "NDVI_mean").
	ReduceRegion(ctx context.Context, req ReduceRegionRequest) (map[string]float64, error)

	// CollectionSize returns the number of images matching the filter.
	CollectionSize(ctx context.Context, filter CollectionFilter) (int, error)

	// AggregateMean averages an image property over the filtered
	// collection (e.g. per-image cloud coverage).
	AggregateMean(ctx context.Context, filter CollectionFilter, property string) (float64, error)

	// ThumbnailURL renders a composite over the geometry and returns an
	// opaque image reference.
	ThumbnailURL(ctx context.Context, req ThumbnailRequest) (string, error)
}

// CollectionFilter selects images from a collection by date range,
// geometry and cloud coverage.
type CollectionFilter struct {
	Collection      string                 `json:"collection"`
	Geometry        map[string]interface{} `json:"geometry"`
	StartDate       string                 `json:"startDate"`
	EndDate         string                 `json:"endDate"`
	MaxCloudPercent float64                `json:"maxCloudPercent,omitempty"`
}

// ReduceRegionRequest describes a pixel aggregation: which collection or
// dataset, which band, which reducers, at what resolution.
type ReduceRegionRequest struct {
	Collection      string                 `json:"collection,omitempty"`
	Dataset         string                 `json:"dataset,omitempty"`
	Geometry        map[string]interface{} `json:"geometry"`
	Band            string                 `json:"band"`
	Reducers        []string               `json:"reducers"`
	StartDate       string                 `json:"startDate,omitempty"`
	EndDate         string                 `json:"endDate,omitempty"`
	MaxCloudPercent float64                `json:"maxCloudPercent,omitempty"`
	Scale           int                    `json:"scale"`
	MaxPixels       float64                `json:"maxPixels"`

	// Mask carries provider-side masking parameters, e.g. Hansen tree
	// cover threshold and loss-year window.
	Mask map[string]interface{} `json:"mask,omitempty"`

	// MultiplyPixelArea requests per-pixel area weighting so sums come
	// back in square meters instead of pixel counts.
	MultiplyPixelArea bool `json:"multiplyPixelArea,omitempty"`
}

// ThumbnailRequest describes a rendered composite thumbnail.
type ThumbnailRequest struct {
	Collection      string                 `json:"collection,omitempty"`
	Dataset         string                 `json:"dataset,omitempty"`
	Geometry        map[string]interface{} `json:"geometry"`
	Bands           []string               `json:"bands,omitempty"`
	Band            string                 `json:"band,omitempty"`
	StartDate       string                 `json:"startDate,omitempty"`
	EndDate         string                 `json:"endDate,omitempty"`
	MaxCloudPercent float64                `json:"maxCloudPercent,omitempty"`
	Min             float64                `json:"min"`
	Max             float64                `json:"max"`
	Palette         []string               `json:"palette,omitempty"`
	Dimensions      int                    `json:"dimensions"`
	Format          string                 `json:"format"`
	Mask            map[string]interface{} `json:"mask,omitempty"`
}

// ProviderError is a failure reported by the remote statistics provider.
// Retryability is decided from its message, matching the provider's
// error vocabulary (timeout, rate limit, quota).
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: provider error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: provider error: %s", e.Op, e.Message)
}

// IsRetryable reports whether an error is a transient provider failure
// worth retrying: a provider error whose message indicates a timeout,
// rate limit, or quota exhaustion. Everything else, including errors
// that did not come from the provider, is not retryable.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	msg := strings.ToLower(providerErr.Message)
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

// HTTPClient talks to the statistics provider over its REST surface.
type HTTPClient struct {
	baseURL    string
	project    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a provider client for the given endpoint and
// project. A nil logger defaults to a no-op logger.
func NewHTTPClient(baseURL, project string, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (c *HTTPClient) ReduceRegion(ctx context.Context, req ReduceRegionRequest) (map[string]float64, error) {
	var result struct {
		Stats map[string]float64 `json:"stats"`
	}
	if err := c.post(ctx, "reduceRegion", req, &result); err != nil {
		return nil, err
	}
	return result.Stats, nil
}

func (c *HTTPClient) CollectionSize(ctx context.Context, filter CollectionFilter) (int, error) {
	var result struct {
		Size int `json:"size"`
	}
	if err := c.post(ctx, "collectionSize", filter, &result); err != nil {
		return 0, err
	}
	return result.Size, nil
}

func (c *HTTPClient) AggregateMean(ctx context.Context, filter CollectionFilter, property string) (float64, error) {
	payload := struct {
		CollectionFilter
		Property string `json:"property"`
	}{filter, property}

	var result struct {
		Mean float64 `json:"mean"`
	}
	if err := c.post(ctx, "aggregateMean", payload, &result); err != nil {
		return 0, err
	}
	return result.Mean, nil
}

func (c *HTTPClient) ThumbnailURL(ctx context.Context, req ThumbnailRequest) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "thumbnail", req, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *HTTPClient) post(ctx context.Context, op string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, c.project, op)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return &ProviderError{Op: op, Message: "request timeout: " + urlErr.Error()}
		}
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			message = "rate limit exceeded: " + message
		case http.StatusGatewayTimeout:
			message = "gateway timeout: " + message
		}
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
