package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/carbon"
	"nuwa-digital-twin/farm-analysis-backend/internal/deforestation"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPipeline returns a fixed successful document for every record.
type stubPipeline struct {
	analyzed []string
}

func (s *stubPipeline) Analyze(ctx context.Context, record *farm.Record, opts analysis.Options) *analysis.Document {
	s.analyzed = append(s.analyzed, record.FarmID)
	return &analysis.Document{
		FarmInfo: analysis.FarmInfo{Name: record.Name, FarmID: record.FarmID, Owner: "N/A"},
		Polygon:  record.Polygon,
		Analysis: map[string]interface{}{
			"deforestation": &deforestation.Result{Compliant: true, DeforestationPercent: 1.5},
			"carbon":        &carbon.Result{BaselineCarbonTCO2e: 100.0, AreaHa: 10.0},
		},
	}
}

const validFarm = `{
  "polygon": {
    "type": "Polygon",
    "coordinates": [[[-74.0, 4.0], [-73.99, 4.0], [-73.99, 4.01], [-74.0, 4.0]]]
  },
  "name": "Finca Uno",
  "farmId": "farm-uno"
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunProcessesDirectory(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeFile(t, inputDir, "finca_a.json", validFarm)
	writeFile(t, inputDir, "finca_b.geojson", validFarm)
	writeFile(t, inputDir, "notes.txt", "ignored")

	pipeline := &stubPipeline{}
	orch := NewOrchestrator(pipeline, nil, nil)

	summary, err := orch.Run(context.Background(), Options{InputDir: inputDir, OutputDir: outputDir})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalFarms)
	assert.Equal(t, 2, summary.SuccessfulAnalyses)
	assert.Zero(t, summary.FailedAnalyses)
	assert.Equal(t, 2, summary.EUDRCompliant)
	assert.InDelta(t, 200.0, summary.TotalCarbon, 0.001)
	assert.False(t, summary.Halted)

	require.NotNil(t, summary.Results[0].AreaHa)
	require.NotNil(t, summary.Results[1].AreaHa)
	assert.Greater(t, *summary.Results[0].AreaHa, 0.0)
	assert.InDelta(t, *summary.Results[0].AreaHa+*summary.Results[1].AreaHa, summary.TotalArea, 0.001)

	assert.FileExists(t, filepath.Join(outputDir, "finca_a_analysis.json"))
	assert.FileExists(t, filepath.Join(outputDir, "finca_b_analysis.json"))
}

func TestRunHaltsOnFirstFailureByDefault(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeFile(t, inputDir, "a_broken.json", `{"not": "a farm"}`)
	writeFile(t, inputDir, "b_valid.json", validFarm)

	orch := NewOrchestrator(&stubPipeline{}, nil, nil)
	summary, err := orch.Run(context.Background(), Options{InputDir: inputDir, OutputDir: outputDir})
	require.NoError(t, err)

	assert.True(t, summary.Halted)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Success)
	assert.NotEmpty(t, summary.Results[0].Error)
	assert.NoFileExists(t, filepath.Join(outputDir, "b_valid_analysis.json"))
}

func TestRunContinuesOnErrorWhenAsked(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeFile(t, inputDir, "a_broken.json", `{"not": "a farm"}`)
	writeFile(t, inputDir, "b_valid.json", validFarm)

	orch := NewOrchestrator(&stubPipeline{}, nil, nil)
	summary, err := orch.Run(context.Background(), Options{
		InputDir:        inputDir,
		OutputDir:       outputDir,
		ContinueOnError: true,
	})
	require.NoError(t, err)

	assert.False(t, summary.Halted)
	assert.Equal(t, 2, summary.TotalFarms)
	assert.Equal(t, 1, summary.SuccessfulAnalyses)
	assert.Equal(t, 1, summary.FailedAnalyses)
	assert.FileExists(t, filepath.Join(outputDir, "b_valid_analysis.json"))
}

func TestRunSuffixesCollidingOutputNames(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeFile(t, inputDir, "finca.geojson", validFarm)
	writeFile(t, inputDir, "finca.json", validFarm)

	orch := NewOrchestrator(&stubPipeline{}, nil, nil)
	summary, err := orch.Run(context.Background(), Options{InputDir: inputDir, OutputDir: outputDir})
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.FileExists(t, filepath.Join(outputDir, "finca_analysis.json"))
	assert.FileExists(t, filepath.Join(outputDir, "finca_analysis_2.json"))
}

// failingCarbonPipeline returns documents whose carbon branch errored.
type failingCarbonPipeline struct{}

func (failingCarbonPipeline) Analyze(ctx context.Context, record *farm.Record, opts analysis.Options) *analysis.Document {
	return &analysis.Document{
		FarmInfo: analysis.FarmInfo{Name: record.Name, FarmID: record.FarmID, Owner: "N/A"},
		Polygon:  record.Polygon,
		Analysis: map[string]interface{}{
			"deforestation": &deforestation.Result{Compliant: true, DeforestationPercent: 1.0},
			"carbon":        map[string]interface{}{"error": "provider timeout"},
		},
	}
}

func TestRunCarriesAreaWhenCarbonFails(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeFile(t, inputDir, "finca.json", validFarm)

	orch := NewOrchestrator(failingCarbonPipeline{}, nil, nil)
	summary, err := orch.Run(context.Background(), Options{InputDir: inputDir, OutputDir: outputDir})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	row := summary.Results[0]
	assert.True(t, row.Success)
	assert.Nil(t, row.CarbonTCO2e)
	require.NotNil(t, row.AreaHa)
	assert.Greater(t, *row.AreaHa, 0.0)
	assert.InDelta(t, *row.AreaHa, summary.TotalArea, 0.001)
	assert.Zero(t, summary.TotalCarbon)
}

func TestRunFailsOnEmptyDirectory(t *testing.T) {
	orch := NewOrchestrator(&stubPipeline{}, nil, nil)
	_, err := orch.Run(context.Background(), Options{InputDir: t.TempDir(), OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestRunCountsSimplifiedGeometries(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	// MultiPolygon: only the first polygon is analyzed, flagged as simplified.
	writeFile(t, inputDir, "multi.json", `{
	  "polygon": {
	    "type": "MultiPolygon",
	    "coordinates": [
	      [[[-74.0, 4.0], [-73.99, 4.0], [-73.99, 4.01], [-74.0, 4.0]]],
	      [[[-75.0, 5.0], [-74.99, 5.0], [-74.99, 5.01], [-75.0, 5.0]]]
	    ]
	  },
	  "farmId": "farm-multi"
	}`)

	orch := NewOrchestrator(&stubPipeline{}, nil, nil)
	summary, err := orch.Run(context.Background(), Options{InputDir: inputDir, OutputDir: outputDir})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SimplifiedGeometries)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].SimplifiedGeometry)
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.json")

	summary := &RunSummary{TotalFarms: 3, SuccessfulAnalyses: 2, FailedAnalyses: 1}
	require.NoError(t, WriteSummary(summary, path))
	assert.FileExists(t, path)
}
