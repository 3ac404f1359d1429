package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAnalysis = `{
  "farmInfo": {"name": "Finca A", "farmId": "farm-a", "owner": "Cooperativa", "location": {"region": "Huila"}},
  "polygon": {"type": "Polygon", "coordinates": [[[-74.0, 4.0], [-73.99, 4.0], [-73.99, 4.01], [-74.0, 4.0]]]},
  "metadata": {},
  "analysis": {
    "ndvi": {"mean": 0.61},
    "deforestation": {"compliant": true, "deforestationPercent": 1.2},
    "carbon": {"baselineCarbonTCO2e": 340.25, "areaHa": 12.5, "verraMethodology": "VM0042", "calculationDate": "2026-08-01T00:00:00Z"}
  },
  "generatedAt": "2026-08-01T00:00:00Z"
}`

const nonCompliantAnalysis = `{
  "farmInfo": {"name": "Finca B", "farmId": "farm-b"},
  "analysis": {
    "deforestation": {"compliant": false, "deforestationPercent": 9.4},
    "carbon": {"baselineCarbonTCO2e": 120.0}
  }
}`

func newTestPinataClient(t *testing.T) *PinataClient {
	t.Helper()
	client := NewPinataClient(PinataCredentials{JWT: "test-jwt"}, nil)
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestPinJSON(t *testing.T) {
	client := newTestPinataClient(t)

	httpmock.RegisterResponder(http.MethodPost,
		"https://api.pinata.cloud/pinning/pinJSONToIPFS",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-jwt", req.Header.Get("Authorization"))

			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Contains(t, payload, "pinataContent")
			meta := payload["pinataMetadata"].(map[string]interface{})
			assert.Equal(t, "finca_analysis.json", meta["name"])
			opts := payload["pinataOptions"].(map[string]interface{})
			assert.Equal(t, float64(1), opts["cidVersion"])

			return httpmock.NewJsonResponse(200, map[string]string{"IpfsHash": "bafybeigtest"})
		})

	cid, err := client.PinJSON(context.Background(), map[string]string{"k": "v"}, "finca_analysis.json")
	require.NoError(t, err)
	assert.Equal(t, "bafybeigtest", cid)
}

func TestPinJSONKeySecretAuth(t *testing.T) {
	client := NewPinataClient(PinataCredentials{APIKey: "key", APISecret: "secret"}, nil)
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost,
		"https://api.pinata.cloud/pinning/pinJSONToIPFS",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "key", req.Header.Get("pinata_api_key"))
			assert.Equal(t, "secret", req.Header.Get("pinata_secret_api_key"))
			return httpmock.NewJsonResponse(200, map[string]string{"IpfsHash": "QmKeyAuth"})
		})

	cid, err := client.PinJSON(context.Background(), map[string]string{}, "x.json")
	require.NoError(t, err)
	assert.Equal(t, "QmKeyAuth", cid)
}

func TestPinJSONErrors(t *testing.T) {
	client := newTestPinataClient(t)

	httpmock.RegisterResponder(http.MethodPost,
		"https://api.pinata.cloud/pinning/pinJSONToIPFS",
		httpmock.NewStringResponder(401, "invalid credentials"))

	_, err := client.PinJSON(context.Background(), map[string]string{}, "x.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	unconfigured := NewPinataClient(PinataCredentials{}, nil)
	_, err = unconfigured.PinJSON(context.Background(), map[string]string{}, "x.json")
	assert.Error(t, err)
}

func TestBuildNFTMetadata(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(sampleAnalysis), &doc))

	metadata := BuildNFTMetadata(doc, "bafybeigtest", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))

	entry := metadata.CardanoNFT["721"].(map[string]interface{})[policyIDPlaceholder].(map[string]interface{})["farm-a"].(map[string]interface{})
	assert.Equal(t, "Digital Twin - Finca A", entry["name"])
	assert.Equal(t, "ipfs://bafybeigtest", entry["image"])

	attrs := entry["attributes"].(map[string]interface{})
	assert.Equal(t, "Yes", attrs["EUDR Compliant"])
	assert.Equal(t, 340.25, attrs["Baseline Carbon (tCO2e)"])

	metrics := metadata.Simple["metrics"].(map[string]interface{})
	assert.Equal(t, true, metrics["eudrCompliant"])
	assert.Equal(t, 12.5, metrics["areaHa"])
	assert.Equal(t, GatewayURL("bafybeigtest"), metadata.Simple["ipfs"].(map[string]interface{})["analysisUrl"])
}

func TestPublishDirectoryDryRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "finca_a_analysis.json"), []byte(sampleAnalysis), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "finca_b_analysis.json"), []byte(nonCompliantAnalysis), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte("{}"), 0o644))

	pub := NewPublisher(NewPinataClient(PinataCredentials{}, nil), nil)
	manifest, err := pub.PublishDirectory(context.Background(), dir, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, manifest.TotalFarms)
	assert.Equal(t, 1, manifest.EligibleFarms)
	assert.InDelta(t, 460.25, manifest.TotalCarbonTCO2e, 0.001)
	assert.True(t, IsDryRunHash(manifest.Farms[0].IpfsHash))

	assert.FileExists(t, filepath.Join(dir, "finca_a_analysis_metadata.json"))
	assert.FileExists(t, filepath.Join(dir, ManifestFilename))

	loaded, err := LoadManifest(filepath.Join(dir, ManifestFilename))
	require.NoError(t, err)
	assert.Equal(t, manifest.TotalFarms, loaded.TotalFarms)
}

func TestPublishDirectoryOnlyEligible(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "finca_a_analysis.json"), []byte(sampleAnalysis), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "finca_b_analysis.json"), []byte(nonCompliantAnalysis), 0o644))

	pub := NewPublisher(NewPinataClient(PinataCredentials{}, nil), nil)
	manifest, err := pub.PublishDirectory(context.Background(), dir, Options{DryRun: true, OnlyEligible: true})
	require.NoError(t, err)

	assert.Equal(t, 1, manifest.TotalFarms)
	assert.Equal(t, "Finca A", manifest.Farms[0].FarmName)
	assert.NoFileExists(t, filepath.Join(dir, "finca_b_analysis_metadata.json"))
}

func TestPublishFileRejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	pub := NewPublisher(NewPinataClient(PinataCredentials{}, nil), nil)
	_, err := pub.PublishFile(context.Background(), path, Options{DryRun: true})
	assert.Error(t, err)
}

func TestVerifyHashFirstGatewayWins(t *testing.T) {
	verifier := NewVerifier(nil)
	httpmock.ActivateNonDefault(verifier.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodHead,
		"https://gateway.pinata.cloud/ipfs/bafytest",
		httpmock.NewStringResponder(504, ""))
	httpmock.RegisterResponder(http.MethodHead,
		"https://ipfs.io/ipfs/bafytest",
		httpmock.ResponderFromResponse(&http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}))

	result := verifier.VerifyHash(context.Background(), "bafytest")
	assert.True(t, result.Accessible)
	assert.Equal(t, "https://ipfs.io", result.Gateway)
	assert.Equal(t, "application/json", result.ContentType)
}

func TestVerifyManifestSkipsDryRunHashes(t *testing.T) {
	verifier := NewVerifier(nil)
	httpmock.ActivateNonDefault(verifier.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterNoResponder(httpmock.NewStringResponder(404, ""))

	manifest := &Manifest{Farms: []FarmPin{
		{FarmName: "Dry", IpfsHash: "QmDRY_RUN_HASH_finca"},
		{FarmName: "Gone", IpfsHash: "bafymissing"},
	}}

	report := verifier.VerifyManifest(context.Background(), manifest)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Accessible)
	assert.Equal(t, []string{"Gone"}, report.Failed)
}
