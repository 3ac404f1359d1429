// Package batch processes whole directories of farm files through the
// analysis pipeline, one farm at a time, and aggregates a run summary.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"
	"nuwa-digital-twin/farm-analysis-backend/pkg/geospatial"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline runs the per-farm analysis. Satisfied by *analysis.Service.
type Pipeline interface {
	Analyze(ctx context.Context, record *farm.Record, opts analysis.Options) *analysis.Document
}

// Options configures one batch run.
type Options struct {
	InputDir  string
	OutputDir string

	// ContinueOnError keeps processing after a farm fails; the default
	// halts the run at the first failure.
	ContinueOnError bool

	Analysis analysis.Options
}

// FarmResult is the per-farm row of the run summary. Pointer fields are
// nil when the corresponding branch failed or did not run.
type FarmResult struct {
	Filename             string   `json:"filename"`
	Name                 string   `json:"name"`
	FarmID               string   `json:"farmId"`
	AreaHa               *float64 `json:"areaHa"`
	NDVI                 *float64 `json:"ndvi"`
	EUDRCompliant        *bool    `json:"eudrCompliant"`
	DeforestationPercent *float64 `json:"deforestationPercent"`
	CarbonTCO2e          *float64 `json:"carbonTCO2e"`
	Success              bool     `json:"success"`
	Error                string   `json:"error,omitempty"`
	OutputFile           string   `json:"outputFile,omitempty"`
	SimplifiedGeometry   bool     `json:"simplifiedGeometry,omitempty"`
}

// RunSummary aggregates a whole batch run.
type RunSummary struct {
	RunID                uuid.UUID    `json:"runId"`
	ProcessedAt          time.Time    `json:"processedAt"`
	TotalFarms           int          `json:"totalFarms"`
	SuccessfulAnalyses   int          `json:"successfulAnalyses"`
	FailedAnalyses       int          `json:"failedAnalyses"`
	TotalArea            float64      `json:"totalArea"`
	TotalCarbon          float64      `json:"totalCarbon"`
	EUDRCompliant        int          `json:"eudrCompliant"`
	SimplifiedGeometries int          `json:"simplifiedGeometries"`
	Halted               bool         `json:"halted,omitempty"`
	Results              []FarmResult `json:"results"`
}

// Orchestrator walks an input directory and runs the pipeline over each
// farm file sequentially.
type Orchestrator struct {
	pipeline Pipeline
	repo     analysis.Repository
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates a batch orchestrator. The repository may be
// nil when database persistence is disabled.
func NewOrchestrator(pipeline Pipeline, repo analysis.Repository, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{pipeline: pipeline, repo: repo, logger: logger, now: time.Now}
}

// Run processes every *.json and *.geojson file in the input directory
// in lexical order. A farm failure never corrupts the results of farms
// already processed; whether it stops the run depends on
// Options.ContinueOnError.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	files, err := findFarmFiles(opts.InputDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no farm files (*.json, *.geojson) found in %s", opts.InputDir)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.New()
	summary := &RunSummary{
		RunID:       runID,
		ProcessedAt: o.now(),
		Results:     make([]FarmResult, 0, len(files)),
	}

	o.logger.Info("starting batch run",
		zap.String("runId", runID.String()),
		zap.String("inputDir", opts.InputDir),
		zap.Int("files", len(files)))

	usedOutputs := make(map[string]int)
	for i, path := range files {
		o.logger.Info("processing farm file",
			zap.Int("index", i+1),
			zap.Int("total", len(files)),
			zap.String("file", filepath.Base(path)))

		result := o.processFarm(ctx, path, opts, runID, usedOutputs)
		summary.Results = append(summary.Results, result)

		if !result.Success {
			o.logger.Error("farm processing failed",
				zap.String("file", result.Filename),
				zap.String("error", result.Error))
			if !opts.ContinueOnError {
				summary.Halted = true
				break
			}
		}
	}

	for _, r := range summary.Results {
		summary.TotalFarms++
		if r.Success {
			summary.SuccessfulAnalyses++
		} else {
			summary.FailedAnalyses++
		}
		if r.AreaHa != nil {
			summary.TotalArea += *r.AreaHa
		}
		if r.CarbonTCO2e != nil {
			summary.TotalCarbon += *r.CarbonTCO2e
		}
		if r.EUDRCompliant != nil && *r.EUDRCompliant {
			summary.EUDRCompliant++
		}
		if r.SimplifiedGeometry {
			summary.SimplifiedGeometries++
		}
	}

	o.logger.Info("batch run complete",
		zap.String("runId", runID.String()),
		zap.Int("total", summary.TotalFarms),
		zap.Int("succeeded", summary.SuccessfulAnalyses),
		zap.Int("failed", summary.FailedAnalyses),
		zap.Int("compliant", summary.EUDRCompliant))

	return summary, nil
}

func (o *Orchestrator) processFarm(ctx context.Context, path string, opts Options, runID uuid.UUID, usedOutputs map[string]int) FarmResult {
	result := FarmResult{Filename: filepath.Base(path)}

	record, err := farm.LoadRecord(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Name = record.Name
	result.FarmID = record.FarmID
	result.SimplifiedGeometry = record.Simplified

	// Area comes from the geometry itself, so the row carries it even
	// when every analysis branch fails.
	area := round2(geospatial.ToHectares(geospatial.Area(record.Polygon.Orb())))
	result.AreaHa = &area

	doc := o.pipeline.Analyze(ctx, record, opts.Analysis)
	s := analysis.Summarize(doc)
	result.NDVI = s.NDVIMean
	result.EUDRCompliant = s.Compliant
	result.DeforestationPercent = s.DeforestationPercent
	result.CarbonTCO2e = s.CarbonTCO2e

	outputPath := o.outputPath(opts.OutputDir, path, usedOutputs)
	if err := analysis.WriteDocument(doc, outputPath); err != nil {
		result.Error = err.Error()
		return result
	}
	result.OutputFile = outputPath

	if o.repo != nil {
		stored, err := analysis.NewRecord(doc, runID)
		if err == nil {
			err = o.repo.Save(ctx, stored)
		}
		if err != nil {
			o.logger.Error("failed to persist analysis",
				zap.String("farmId", record.FarmID), zap.Error(err))
		}
	}

	result.Success = true
	return result
}

// outputPath derives `<stem>_analysis.json`, suffixing on collision so a
// later farm never overwrites an earlier one's output.
func (o *Orchestrator) outputPath(outputDir, inputPath string, used map[string]int) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name := stem + "_analysis.json"
	used[name]++
	if n := used[name]; n > 1 {
		name = fmt.Sprintf("%s_analysis_%d.json", stem, n)
	}
	return filepath.Join(outputDir, name)
}

// WriteSummary persists the run summary as indented JSON.
func WriteSummary(summary *RunSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

func findFarmFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".geojson":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
