// Package deforestation measures forest loss over a farm polygon against
// the Hansen Global Forest Change dataset and derives EUDR compliance.
package deforestation

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"go.uber.org/zap"
)

const (
	// Hansen bands are published at 30 m resolution.
	hansenScale = 30

	// Pixels below this treecover2000 percentage are not counted as
	// forest baseline.
	treeCoverThreshold = 30

	// EUDR compliance threshold: strictly less than 5% loss.
	complianceThresholdPercent = 5.0

	maxCloudPercent = 20.0
	maxPixels       = 1e9
	thumbnailSize   = 512

	methodologyLabel = "Hansen GFC + Sentinel-2 validation"
)

// DefaultPeriodYears is the lookback window when the caller gives none.
const DefaultPeriodYears = 5

// HistoricalImage is one dry-season composite rendered for a year of the
// analysis period.
type HistoricalImage struct {
	Year int    `json:"year"`
	URL  string `json:"url"`
}

// Period is the analyzed date range.
type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Result is the outcome of one deforestation analysis. When Degraded is
// set the metrics are the fail-open defaults and Warning explains why.
type Result struct {
	DeforestationPercent float64           `json:"deforestationPercent"`
	AreaLostHa           float64           `json:"areaLostHa"`
	InitialForestHa      float64           `json:"initialForestHa"`
	Compliant            bool              `json:"compliant"`
	HistoricalImages     []HistoricalImage `json:"historicalImages"`
	ChangeDetectionURL   string            `json:"changeDetectionUrl,omitempty"`
	AnalyzedPeriod       Period            `json:"analyzedPeriod"`
	AnalysisDate         time.Time         `json:"analysisDate"`
	Methodology          string            `json:"methodology"`
	Degraded             bool              `json:"degraded,omitempty"`
	Warning              string            `json:"warning,omitempty"`
}

// Analyzer runs forest-loss analyses through the resilient executor.
type Analyzer struct {
	client earthengine.Client
	retry  earthengine.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewAnalyzer creates a deforestation analyzer. A nil logger is replaced
// with a no-op logger.
func NewAnalyzer(client earthengine.Client, retry earthengine.RetryPolicy, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry.Logger = logger
	return &Analyzer{client: client, retry: retry, logger: logger, now: time.Now}
}

// DefaultPeriod returns the standard five-year lookback ending today.
func (a *Analyzer) DefaultPeriod() Period {
	end := a.now()
	start := end.AddDate(0, 0, -DefaultPeriodYears*365)
	return Period{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}
}

// Analyze measures forest loss within the period. Core statistic
// failures do not propagate: the result degrades to zero loss and
// compliant=true, tagged with Degraded and a Warning, so a flaky
// provider never sinks a whole batch run. Visualization failures are
// always soft.
func (a *Analyzer) Analyze(ctx context.Context, polygon *farm.Polygon, period Period) (*Result, error) {
	startYear, err := yearOf(period.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	endYear, err := yearOf(period.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}
	if endYear < startYear {
		return nil, fmt.Errorf("analysis period ends (%d) before it starts (%d)", endYear, startYear)
	}

	geometry := polygon.GeoJSON()
	a.logger.Info("analyzing deforestation",
		zap.Int("startYear", startYear),
		zap.Int("endYear", endYear))

	initialHa, lostHa, err := a.forestStats(ctx, geometry, startYear, endYear)
	if err != nil {
		a.logger.Error("deforestation statistics failed, returning degraded result", zap.Error(err))
		return &Result{
			Compliant:        true,
			HistoricalImages: []HistoricalImage{},
			AnalyzedPeriod:   period,
			AnalysisDate:     a.now(),
			Methodology:      methodologyLabel,
			Degraded:         true,
			Warning:          "deforestation calculation failed, using default values",
		}, nil
	}

	percent := 0.0
	if initialHa > 0 {
		percent = lostHa / initialHa * 100
	}
	compliant := percent < complianceThresholdPercent

	result := &Result{
		DeforestationPercent: round2(percent),
		AreaLostHa:           round2(lostHa),
		InitialForestHa:      round2(initialHa),
		Compliant:            compliant,
		HistoricalImages:     []HistoricalImage{},
		AnalyzedPeriod:       period,
		AnalysisDate:         a.now(),
		Methodology:          methodologyLabel,
	}

	if url, err := a.changeDetectionURL(ctx, geometry, startYear, endYear); err != nil {
		a.logger.Warn("could not generate change detection image", zap.Error(err))
	} else {
		result.ChangeDetectionURL = url
	}

	for img := range a.HistoricalImages(ctx, polygon, startYear, endYear) {
		result.HistoricalImages = append(result.HistoricalImages, img)
	}

	a.logger.Info("deforestation analysis complete",
		zap.Float64("initialForestHa", result.InitialForestHa),
		zap.Float64("areaLostHa", result.AreaLostHa),
		zap.Float64("deforestationPercent", result.DeforestationPercent),
		zap.Bool("compliant", compliant))

	return result, nil
}

// forestStats returns the baseline forest area and the area lost within
// the period, both in hectares.
func (a *Analyzer) forestStats(ctx context.Context, geometry map[string]interface{}, startYear, endYear int) (initialHa, lostHa float64, err error) {
	coverMask := map[string]interface{}{
		"treeCoverThreshold": treeCoverThreshold,
	}

	areaStats, err := earthengine.Retry(a.retry, "calculating baseline forest area", func() (map[string]float64, error) {
		return a.client.ReduceRegion(ctx, earthengine.ReduceRegionRequest{
			Dataset:           earthengine.HansenDataset,
			Geometry:          geometry,
			Band:              "treecover2000",
			Reducers:          []string{"sum"},
			Scale:             hansenScale,
			MaxPixels:         maxPixels,
			Mask:              coverMask,
			MultiplyPixelArea: true,
		})
	})
	if err != nil {
		return 0, 0, fmt.Errorf("baseline forest area: %w", err)
	}

	// Hansen lossyear values are offsets from 2000.
	lossMask := map[string]interface{}{
		"treeCoverThreshold": treeCoverThreshold,
		"lossYearStart":      startYear - 2000,
		"lossYearEnd":        endYear - 2000,
	}

	lossStats, err := earthengine.Retry(a.retry, "calculating forest loss area", func() (map[string]float64, error) {
		return a.client.ReduceRegion(ctx, earthengine.ReduceRegionRequest{
			Dataset:           earthengine.HansenDataset,
			Geometry:          geometry,
			Band:              "lossyear",
			Reducers:          []string{"sum"},
			Scale:             hansenScale,
			MaxPixels:         maxPixels,
			Mask:              lossMask,
			MultiplyPixelArea: true,
		})
	})
	if err != nil {
		return 0, 0, fmt.Errorf("forest loss area: %w", err)
	}

	// Area-weighted sums come back in square meters.
	initialHa = areaStats["treecover2000_sum"] / 10000
	lostHa = lossStats["lossyear_sum"] / 10000
	return initialHa, lostHa, nil
}

func (a *Analyzer) changeDetectionURL(ctx context.Context, geometry map[string]interface{}, startYear, endYear int) (string, error) {
	return earthengine.Retry(a.retry, "generating change detection image", func() (string, error) {
		return a.client.ThumbnailURL(ctx, earthengine.ThumbnailRequest{
			Dataset:    earthengine.HansenDataset,
			Geometry:   geometry,
			Band:       "lossyear",
			Palette:    []string{"red"},
			Dimensions: thumbnailSize,
			Format:     "png",
			Mask: map[string]interface{}{
				"treeCoverThreshold": treeCoverThreshold,
				"lossYearStart":      startYear - 2000,
				"lossYearEnd":        endYear - 2000,
			},
		})
	})
}

// HistoricalImages lazily yields one dry-season true-color composite per
// year of the period. Years without usable imagery and per-year provider
// failures are skipped; consuming stops when the caller breaks.
func (a *Analyzer) HistoricalImages(ctx context.Context, polygon *farm.Polygon, startYear, endYear int) iter.Seq[HistoricalImage] {
	geometry := polygon.GeoJSON()
	return func(yield func(HistoricalImage) bool) {
		for year := startYear; year <= endYear; year++ {
			// Dry season (June-August) for better visibility.
			filter := earthengine.CollectionFilter{
				Collection:      earthengine.Sentinel2Collection,
				Geometry:        geometry,
				StartDate:       fmt.Sprintf("%d-06-01", year),
				EndDate:         fmt.Sprintf("%d-08-31", year),
				MaxCloudPercent: maxCloudPercent,
			}

			count, err := earthengine.Retry(a.retry, "checking historical imagery", func() (int, error) {
				return a.client.CollectionSize(ctx, filter)
			})
			if err != nil {
				a.logger.Warn("could not check imagery for year",
					zap.Int("year", year), zap.Error(err))
				continue
			}
			if count == 0 {
				continue
			}

			url, err := earthengine.Retry(a.retry, "generating historical image", func() (string, error) {
				return a.client.ThumbnailURL(ctx, earthengine.ThumbnailRequest{
					Collection:      earthengine.Sentinel2Collection,
					Geometry:        geometry,
					Bands:           []string{"B4", "B3", "B2"},
					StartDate:       filter.StartDate,
					EndDate:         filter.EndDate,
					MaxCloudPercent: maxCloudPercent,
					Min:             0,
					Max:             3000,
					Dimensions:      thumbnailSize,
					Format:          "png",
				})
			})
			if err != nil {
				a.logger.Warn("could not generate image for year",
					zap.Int("year", year), zap.Error(err))
				continue
			}

			a.logger.Debug("generated historical image", zap.Int("year", year))
			if !yield(HistoricalImage{Year: year, URL: url}) {
				return
			}
		}
	}
}

func yearOf(date string) (int, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, err
	}
	return t.Year(), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
