package publish

import (
	"encoding/json"
	"time"
)

// NFTMetadata bundles the two metadata renditions written next to each
// pinned analysis: a Cardano CIP-25 document and a simplified reference
// form.
type NFTMetadata struct {
	CardanoNFT map[string]interface{} `json:"cardanoNFT"`
	Simple     map[string]interface{} `json:"simple"`
}

// policyIDPlaceholder stands in for the minting policy id, which is
// only known at token issuance time.
const policyIDPlaceholder = "POLICY_ID_PLACEHOLDER"

// BuildNFTMetadata derives NFT metadata from a raw analysis document
// (as read back from disk) and the CID it was pinned under.
func BuildNFTMetadata(doc map[string]interface{}, cid string, now time.Time) *NFTMetadata {
	farmInfo := subMap(doc, "farmInfo")
	analysisMap := subMap(doc, "analysis")
	ndvi := subMap(analysisMap, "ndvi")
	forest := subMap(analysisMap, "deforestation")
	carbonMap := subMap(analysisMap, "carbon")

	farmID := stringOr(farmInfo, "farmId", "unknown")
	farmName := stringOr(farmInfo, "name", "Unknown Farm")
	location := farmInfo["location"]
	if location == nil {
		location = map[string]interface{}{}
	}
	locationJSON, _ := json.Marshal(location)

	compliant := boolOr(forest, "compliant")
	compliantLabel := "No"
	if compliant {
		compliantLabel = "Yes"
	}

	cardano := map[string]interface{}{
		"721": map[string]interface{}{
			policyIDPlaceholder: map[string]interface{}{
				farmID: map[string]interface{}{
					"name":        "Digital Twin - " + farmName,
					"description": "Verified carbon baseline and EUDR compliance certificate for " + farmName,
					"image":       "ipfs://" + cid,
					"mediaType":   "application/json",
					"files": []map[string]interface{}{
						{
							"name":      "Farm Analysis Data",
							"mediaType": "application/json",
							"src":       "ipfs://" + cid,
						},
					},
					"attributes": map[string]interface{}{
						"Farm ID":                 farmID,
						"Owner":                   stringOr(farmInfo, "owner", "N/A"),
						"Location":                string(locationJSON),
						"Baseline Carbon (tCO2e)": floatOr(carbonMap, "baselineCarbonTCO2e"),
						"NDVI Mean":               floatOr(ndvi, "mean"),
						"EUDR Compliant":          compliantLabel,
						"Deforestation %":         floatOr(forest, "deforestationPercent"),
						"Area (ha)":               floatOr(carbonMap, "areaHa"),
						"Methodology":             stringOr(carbonMap, "verraMethodology", "VM0042"),
						"Analysis Date":           stringOr(carbonMap, "calculationDate", ""),
						"IPFS Hash":               cid,
					},
				},
			},
		},
	}

	simple := map[string]interface{}{
		"type":     "FarmDigitalTwin",
		"version":  "1.0",
		"farmId":   farmID,
		"name":     farmName,
		"owner":    stringOr(farmInfo, "owner", "N/A"),
		"location": location,
		"metrics": map[string]interface{}{
			"baselineCarbonTCO2e":  floatOr(carbonMap, "baselineCarbonTCO2e"),
			"ndviMean":             floatOr(ndvi, "mean"),
			"eudrCompliant":        compliant,
			"deforestationPercent": floatOr(forest, "deforestationPercent"),
			"areaHa":               floatOr(carbonMap, "areaHa"),
		},
		"ipfs": map[string]interface{}{
			"analysisHash": cid,
			"analysisUrl":  GatewayURL(cid),
		},
		"verificationDate": now.Format(time.RFC3339),
		"methodology":      "Verra VM0042",
	}

	return &NFTMetadata{CardanoNFT: cardano, Simple: simple}
}

func subMap(m map[string]interface{}, key string) map[string]interface{} {
	if sub, ok := m[key].(map[string]interface{}); ok {
		return sub
	}
	return map[string]interface{}{}
}

func stringOr(m map[string]interface{}, key, fallback string) string {
	if value, ok := m[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func floatOr(m map[string]interface{}, key string) float64 {
	if value, ok := m[key].(float64); ok {
		return value
	}
	return 0
}

func boolOr(m map[string]interface{}, key string) bool {
	value, _ := m[key].(bool)
	return value
}
