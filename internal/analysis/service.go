// Package analysis runs the per-farm analysis pipeline: vegetation
// index, deforestation compliance and carbon baseline, each isolated so
// one failing branch never empties the others.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/carbon"
	"nuwa-digital-twin/farm-analysis-backend/internal/deforestation"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"
	"nuwa-digital-twin/farm-analysis-backend/internal/ndvi"

	"go.uber.org/zap"
)

// Branch selects which analyses to run.
type Branch string

const (
	BranchNDVI          Branch = "ndvi"
	BranchDeforestation Branch = "deforestation"
	BranchCarbon        Branch = "carbon"
)

// AllBranches is the default full pipeline.
var AllBranches = []Branch{BranchNDVI, BranchDeforestation, BranchCarbon}

// NDVICalculator computes vegetation statistics for a polygon.
type NDVICalculator interface {
	Calculate(ctx context.Context, polygon *farm.Polygon, startDate, endDate string) (*ndvi.Statistics, error)
}

// ForestAnalyzer measures forest loss and compliance.
type ForestAnalyzer interface {
	Analyze(ctx context.Context, polygon *farm.Polygon, period deforestation.Period) (*deforestation.Result, error)
	DefaultPeriod() deforestation.Period
}

// CarbonEstimator computes a carbon baseline.
type CarbonEstimator interface {
	Estimate(ctx context.Context, polygon *farm.Polygon, inventory []farm.TreeMeasurement, method carbon.Method) (*carbon.Result, error)
}

// Options tunes a single pipeline run. Zero values select the defaults:
// all branches, the previous calendar year for NDVI, the field method
// (which degrades to satellite without inventory) for carbon.
type Options struct {
	Branches      []Branch
	NDVIStartDate string
	NDVIEndDate   string
	CarbonMethod  carbon.Method
	ForestPeriod  *deforestation.Period
}

// Document is the complete analysis output for one farm.
type Document struct {
	FarmInfo    FarmInfo               `json:"farmInfo"`
	Polygon     *farm.Polygon          `json:"polygon"`
	Metadata    map[string]interface{} `json:"metadata"`
	Analysis    map[string]interface{} `json:"analysis"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// Service drives the analysis pipeline.
type Service struct {
	ndvi   NDVICalculator
	forest ForestAnalyzer
	carbon CarbonEstimator
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the three branch engines into a pipeline. A nil
// logger is replaced with a no-op logger.
func NewService(ndviCalc NDVICalculator, forest ForestAnalyzer, carbonEst CarbonEstimator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ndvi:   ndviCalc,
		forest: forest,
		carbon: carbonEst,
		logger: logger,
		now:    time.Now,
	}
}

// Analyze runs the selected branches for one farm record. Branch
// failures are captured in that branch's slot as {"error": ...} and
// never abort the run, so the document always comes back.
func (s *Service) Analyze(ctx context.Context, record *farm.Record, opts Options) *Document {
	branches := opts.Branches
	if len(branches) == 0 {
		branches = AllBranches
	}

	s.logger.Info("analyzing farm",
		zap.String("farmId", record.FarmID),
		zap.String("name", record.Name))

	results := make(map[string]interface{}, len(branches))
	for _, branch := range branches {
		switch branch {
		case BranchNDVI:
			start, end := s.ndviWindow(opts)
			stats, err := s.ndvi.Calculate(ctx, record.Polygon, start, end)
			if err != nil {
				s.logger.Error("ndvi branch failed", zap.String("farmId", record.FarmID), zap.Error(err))
				results[string(BranchNDVI)] = map[string]interface{}{"error": err.Error()}
			} else {
				results[string(BranchNDVI)] = stats
			}

		case BranchDeforestation:
			period := s.forest.DefaultPeriod()
			if opts.ForestPeriod != nil {
				period = *opts.ForestPeriod
			}
			result, err := s.forest.Analyze(ctx, record.Polygon, period)
			if err != nil {
				s.logger.Error("deforestation branch failed", zap.String("farmId", record.FarmID), zap.Error(err))
				results[string(BranchDeforestation)] = map[string]interface{}{"error": err.Error()}
			} else {
				results[string(BranchDeforestation)] = result
			}

		case BranchCarbon:
			method := opts.CarbonMethod
			if method == "" {
				method = carbon.MethodField
			}
			result, err := s.carbon.Estimate(ctx, record.Polygon, record.TreeInventory, method)
			if err != nil {
				s.logger.Error("carbon branch failed", zap.String("farmId", record.FarmID), zap.Error(err))
				results[string(BranchCarbon)] = map[string]interface{}{"error": err.Error()}
			} else {
				results[string(BranchCarbon)] = result
			}
		}
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return &Document{
		FarmInfo: FarmInfo{
			Name:     orNA(record.Name),
			FarmID:   orNA(record.FarmID),
			Owner:    orNA(record.Owner),
			Location: record.Location,
		},
		Polygon:     record.Polygon,
		Metadata:    metadata,
		Analysis:    results,
		GeneratedAt: s.now(),
	}
}

// ndviWindow resolves the NDVI date range, defaulting to the previous
// full calendar year.
func (s *Service) ndviWindow(opts Options) (string, string) {
	if opts.NDVIStartDate != "" && opts.NDVIEndDate != "" {
		return opts.NDVIStartDate, opts.NDVIEndDate
	}
	year := s.now().Year() - 1
	return fmt.Sprintf("%d-01-01", year), fmt.Sprintf("%d-12-31", year)
}

// WriteDocument persists the document as indented JSON, creating parent
// directories as needed.
func WriteDocument(doc *Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analysis document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write analysis document: %w", err)
	}
	return nil
}

// Summary extracts the headline figures used by batch reporting and the
// persistence layer. Missing or failed branches yield nil fields.
type Summary struct {
	AreaHa               float64
	NDVIMean             *float64
	Compliant            *bool
	DeforestationPercent *float64
	CarbonTCO2e          *float64
}

// Summarize pulls the headline figures out of a document.
func Summarize(doc *Document) Summary {
	var summary Summary

	if stats, ok := doc.Analysis[string(BranchNDVI)].(*ndvi.Statistics); ok {
		mean := stats.Mean
		summary.NDVIMean = &mean
	}
	if result, ok := doc.Analysis[string(BranchDeforestation)].(*deforestation.Result); ok {
		compliant := result.Compliant
		percent := result.DeforestationPercent
		summary.Compliant = &compliant
		summary.DeforestationPercent = &percent
	}
	if result, ok := doc.Analysis[string(BranchCarbon)].(*carbon.Result); ok {
		co2e := result.BaselineCarbonTCO2e
		summary.CarbonTCO2e = &co2e
		summary.AreaHa = result.AreaHa
	}

	return summary
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
