package publish

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// FarmPin records one analysis pinned to IPFS.
type FarmPin struct {
	Filename      string  `json:"filename"`
	FarmName      string  `json:"farmName"`
	IpfsHash      string  `json:"ipfsHash"`
	IpfsURL       string  `json:"ipfsUrl"`
	MetadataFile  string  `json:"metadataFile"`
	EUDRCompliant bool    `json:"eudrCompliant"`
	CarbonTCO2e   float64 `json:"carbonTCO2e"`
}

// Manifest is the batch publishing record, the input to verification.
type Manifest struct {
	Version          string    `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	TotalFarms       int       `json:"totalFarms"`
	EligibleFarms    int       `json:"eligibleFarms"`
	TotalCarbonTCO2e float64   `json:"totalCarbonTCO2e"`
	Farms            []FarmPin `json:"farms"`
}

// NewManifest aggregates pins into a manifest.
func NewManifest(pins []FarmPin, now time.Time) *Manifest {
	manifest := &Manifest{
		Version:    "1.0",
		CreatedAt:  now,
		TotalFarms: len(pins),
		Farms:      pins,
	}
	var totalCarbon float64
	for _, pin := range pins {
		if pin.EUDRCompliant {
			manifest.EligibleFarms++
		}
		totalCarbon += pin.CarbonTCO2e
	}
	manifest.TotalCarbonTCO2e = math.Round(totalCarbon*100) / 100
	return manifest
}

// WriteManifest persists the manifest as indented JSON.
func WriteManifest(manifest *Manifest, path string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest back for verification.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
