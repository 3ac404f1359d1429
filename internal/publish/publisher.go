package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const analysisSuffix = "_analysis.json"

// ManifestFilename is written into the published directory.
const ManifestFilename = "ipfs_manifest.json"

// Options tunes a publishing run.
type Options struct {
	// DryRun generates metadata with placeholder hashes without
	// touching the pinning service.
	DryRun bool

	// OnlyEligible publishes only EUDR-compliant farms.
	OnlyEligible bool
}

// Publisher pins analysis documents and writes NFT metadata next to
// them.
type Publisher struct {
	pinata *PinataClient
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher. A nil logger is replaced with a
// no-op logger.
func NewPublisher(pinata *PinataClient, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{pinata: pinata, logger: logger, now: time.Now}
}

// PublishFile pins one `*_analysis.json` document, writes its NFT
// metadata alongside it and returns the pin record. In dry-run mode the
// hash is a deterministic placeholder.
func (p *Publisher) PublishFile(ctx context.Context, path string, opts Options) (*FarmPin, error) {
	if !strings.HasSuffix(filepath.Base(path), analysisSuffix) {
		return nil, fmt.Errorf("%s is not an analysis document (expected *%s)", path, analysisSuffix)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse analysis document: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	farmInfo := subMap(doc, "farmInfo")
	farmName := stringOr(farmInfo, "name", stem)

	var cid string
	if opts.DryRun {
		cid = dryRunHashPrefix + "_HASH_" + truncate(stem, 20)
		p.logger.Info("dry run, skipping pin", zap.String("file", filepath.Base(path)))
	} else {
		cid, err = p.pinata.PinJSON(ctx, doc, filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("failed to pin %s: %w", filepath.Base(path), err)
		}
	}

	metadata := BuildNFTMetadata(doc, cid, p.now())
	metadataPath := filepath.Join(filepath.Dir(path), stem+"_metadata.json")
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode nft metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath, metadataJSON, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write nft metadata: %w", err)
	}

	forest := subMap(subMap(doc, "analysis"), "deforestation")
	carbonMap := subMap(subMap(doc, "analysis"), "carbon")

	return &FarmPin{
		Filename:      filepath.Base(path),
		FarmName:      farmName,
		IpfsHash:      cid,
		IpfsURL:       GatewayURL(cid),
		MetadataFile:  metadataPath,
		EUDRCompliant: boolOr(forest, "compliant"),
		CarbonTCO2e:   floatOr(carbonMap, "baselineCarbonTCO2e"),
	}, nil
}

// PublishDirectory pins every analysis document in the directory (in
// lexical order) and writes the batch manifest into it.
func (p *Publisher) PublishDirectory(ctx context.Context, dir string, opts Options) (*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, analysisSuffix) {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "manifest") || strings.Contains(lower, "summary") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no analysis documents (*%s) found in %s", analysisSuffix, dir)
	}

	var pins []FarmPin
	for _, path := range files {
		if opts.OnlyEligible {
			eligible, err := isCompliant(path)
			if err != nil {
				return nil, err
			}
			if !eligible {
				p.logger.Info("skipping non-compliant farm",
					zap.String("file", filepath.Base(path)))
				continue
			}
		}
		pin, err := p.PublishFile(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		pins = append(pins, *pin)
	}

	manifest := NewManifest(pins, p.now())
	if err := WriteManifest(manifest, filepath.Join(dir, ManifestFilename)); err != nil {
		return nil, err
	}

	p.logger.Info("published batch to ipfs",
		zap.Int("farms", manifest.TotalFarms),
		zap.Int("eligible", manifest.EligibleFarms))
	return manifest, nil
}

func isCompliant(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read analysis document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to parse analysis document: %w", err)
	}
	return boolOr(subMap(subMap(doc, "analysis"), "deforestation"), "compliant"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
