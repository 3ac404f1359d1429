package publish

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultGateways are the public IPFS gateways tried during
// verification, in order.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud",
	"https://ipfs.io",
	"https://cloudflare-ipfs.com",
	"https://dweb.link",
}

// dryRunHashPrefix marks placeholder hashes generated without pinning.
const dryRunHashPrefix = "QmDRY_RUN"

// IsDryRunHash reports whether the hash is a dry-run placeholder.
func IsDryRunHash(hash string) bool {
	return strings.HasPrefix(hash, dryRunHashPrefix)
}

// VerifyResult is the outcome of probing one CID.
type VerifyResult struct {
	Hash        string `json:"hash"`
	Accessible  bool   `json:"accessible"`
	Gateway     string `json:"gateway,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// ManifestReport summarizes a whole-manifest verification.
type ManifestReport struct {
	Total      int      `json:"total"`
	Accessible int      `json:"accessible"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed"`
}

// Verifier probes CIDs on public gateways.
type Verifier struct {
	gateways   []string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVerifier creates a verifier over the default gateway list.
func NewVerifier(logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		gateways:   DefaultGateways,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// VerifyHash probes each gateway with a HEAD request; the first 200
// wins. Gateway errors and timeouts just move on to the next gateway.
func (v *Verifier) VerifyHash(ctx context.Context, hash string) VerifyResult {
	result := VerifyResult{Hash: hash}

	for _, gateway := range v.gateways {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, gateway+"/ipfs/"+hash, nil)
		if err != nil {
			continue
		}

		resp, err := v.httpClient.Do(req)
		if err != nil {
			v.logger.Debug("gateway probe failed",
				zap.String("gateway", gateway), zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			result.Accessible = true
			result.Gateway = gateway
			result.StatusCode = resp.StatusCode
			result.ContentType = resp.Header.Get("Content-Type")
			return result
		}
	}

	return result
}

// VerifyManifest probes every pinned farm in the manifest. Dry-run
// hashes are skipped rather than counted as failures.
func (v *Verifier) VerifyManifest(ctx context.Context, manifest *Manifest) *ManifestReport {
	report := &ManifestReport{Total: len(manifest.Farms)}

	for _, farm := range manifest.Farms {
		if IsDryRunHash(farm.IpfsHash) {
			v.logger.Info("skipping dry-run hash", zap.String("farm", farm.FarmName))
			report.Skipped++
			continue
		}

		result := v.VerifyHash(ctx, farm.IpfsHash)
		if result.Accessible {
			v.logger.Info("pin accessible",
				zap.String("farm", farm.FarmName),
				zap.String("gateway", result.Gateway))
			report.Accessible++
		} else {
			v.logger.Warn("pin not accessible",
				zap.String("farm", farm.FarmName),
				zap.String("hash", farm.IpfsHash))
			report.Failed = append(report.Failed, farm.FarmName)
		}
	}

	return report
}
