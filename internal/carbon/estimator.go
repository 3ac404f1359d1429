// Package carbon implements the biomass and carbon baseline estimation
// engine, reconciling ground inventories and satellite vegetation
// indices into a single confidence-rated figure (Verra VM0042 style).
package carbon

import (
	"context"
	"fmt"
	"math"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"
	"nuwa-digital-twin/farm-analysis-backend/pkg/geospatial"

	"go.uber.org/zap"
)

// Method selects the estimation strategy.
type Method string

const (
	MethodField     Method = "field"
	MethodSatellite Method = "satellite"
	MethodHybrid    Method = "hybrid"

	// MethodDefaultEstimation marks the fixed 50 t/ha fallback used
	// when the provider has no imagery. Downstream consumers key off
	// this value to detect the fallback.
	MethodDefaultEstimation Method = "default_estimation"
)

// Confidence rates the estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Conversion constants.
const (
	carbonFraction    = 0.47 // carbon fraction of dry biomass
	belowgroundFactor = 1.20 // +20% belowground biomass, tropical systems
	co2MassRatio      = 44.0 / 12.0
	defaultAgbPerHa   = 50.0 // conservative fallback, t/ha
	highConfidenceMin = 10   // analyzed trees for high confidence
	maxCloudPercent   = 20.0
	ndviScaleMeters   = 10
	maxPixels         = 1e9
)

// Result is one immutable carbon baseline estimate.
type Result struct {
	BaselineCarbonTCO2e float64    `json:"baselineCarbonTCO2e"`
	AgbTonnesPerHa      float64    `json:"agbTonnesPerHa"`
	TotalAgbTonnes      float64    `json:"totalAgbTonnes"`
	TotalCarbonTonnes   float64    `json:"totalCarbonTonnes"`
	AreaHa              float64    `json:"areaHa"`
	Methodology         Method     `json:"methodology"`
	Confidence          Confidence `json:"confidence"`
	TreesAnalyzed       int        `json:"treesAnalyzed"`
	NDVIMean            *float64   `json:"ndviMean,omitempty"`
	CalculationDate     time.Time  `json:"calculationDate"`
	Equation            string     `json:"equation"`
	VerraMethodology    string     `json:"verraMethodology"`
	Breakdown           Breakdown  `json:"breakdown"`
}

// Breakdown splits the carbon figure into above- and belowground pools.
type Breakdown struct {
	AbovegroundBiomass float64 `json:"abovegroundBiomass"`
	BelowgroundBiomass float64 `json:"belowgroundBiomass"`
}

// Estimator computes carbon baselines. The density lookup is injected at
// construction so alternate tables can be substituted in tests.
type Estimator struct {
	client  earthengine.Client
	retry   earthengine.RetryPolicy
	density DensityLookup
	logger  *zap.Logger
	now     func() time.Time
}

// NewEstimator creates an estimation engine.
func NewEstimator(client earthengine.Client, retry earthengine.RetryPolicy, density DensityLookup, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if density == nil {
		density = DefaultDensityTable()
	}
	retry.Logger = logger
	return &Estimator{
		client:  client,
		retry:   retry,
		density: density,
		logger:  logger,
		now:     time.Now,
	}
}

// Estimate produces a carbon baseline for the polygon using the selected
// method. Requesting field or hybrid without inventory data silently
// falls back to the satellite method; the Methodology field reflects the
// method actually used.
func (e *Estimator) Estimate(ctx context.Context, polygon *farm.Polygon, inventory []farm.TreeMeasurement, method Method) (*Result, error) {
	areaHa := geospatial.ToHectares(geospatial.Area(polygon.Orb()))

	var (
		totalAgb      float64
		agbPerHa      float64
		methodology   Method
		confidence    Confidence
		treesAnalyzed int
		ndviMean      *float64
	)

	switch {
	case method == MethodField && len(inventory) > 0:
		totalAgb, treesAnalyzed = e.fieldAGB(inventory)
		if areaHa > 0 {
			agbPerHa = totalAgb / areaHa
		}
		methodology = MethodField
		confidence = ConfidenceMedium
		if treesAnalyzed >= highConfidenceMin {
			confidence = ConfidenceHigh
		}

	case method == MethodHybrid && len(inventory) > 0:
		fieldAgb, trees := e.fieldAGB(inventory)
		sat, err := e.satelliteAGB(ctx, polygon, areaHa)
		if err != nil {
			return nil, err
		}

		// Field data weighs more as the sample grows, capped at 0.7.
		// With zero analyzed trees the field weight stays at 0.3, not 0.
		fieldWeight := math.Min(0.7, 0.3+float64(trees)/100)
		totalAgb = fieldAgb*fieldWeight + sat.totalAgb*(1-fieldWeight)
		if areaHa > 0 {
			agbPerHa = totalAgb / areaHa
		}
		treesAnalyzed = trees
		ndviMean = sat.ndviMean
		methodology = MethodHybrid
		confidence = ConfidenceHigh

	default:
		sat, err := e.satelliteAGB(ctx, polygon, areaHa)
		if err != nil {
			return nil, err
		}
		totalAgb = sat.totalAgb
		agbPerHa = sat.agbPerHa
		ndviMean = sat.ndviMean
		methodology = sat.methodology
		confidence = sat.confidence
	}

	// AGB → carbon → +belowground → CO2e. Rounding happens only here,
	// at the output boundary.
	totalCarbon := totalAgb * carbonFraction
	carbonWithBgb := totalCarbon * belowgroundFactor
	totalCO2e := carbonWithBgb * co2MassRatio

	e.logger.Info("carbon baseline calculated",
		zap.String("methodology", string(methodology)),
		zap.Float64("totalAgbTonnes", totalAgb),
		zap.Float64("totalCO2e", totalCO2e),
		zap.Int("treesAnalyzed", treesAnalyzed))

	return &Result{
		BaselineCarbonTCO2e: round2(totalCO2e),
		AgbTonnesPerHa:      round2(agbPerHa),
		TotalAgbTonnes:      round2(totalAgb),
		TotalCarbonTonnes:   round2(carbonWithBgb),
		AreaHa:              round4(areaHa),
		Methodology:         methodology,
		Confidence:          confidence,
		TreesAnalyzed:       treesAnalyzed,
		NDVIMean:            ndviMean,
		CalculationDate:     e.now(),
		Equation:            "Chave et al. 2014 (pantropical)",
		VerraMethodology:    "VM0042",
		Breakdown: Breakdown{
			AbovegroundBiomass: round2(totalCarbon),
			BelowgroundBiomass: round2(totalCarbon * 0.2),
		},
	}, nil
}

// fieldAGB aggregates the inventory with the Chave et al. 2014
// pantropical allometric equation:
//
//	AGB (kg) = 0.0673 × (ρ × DBH² × H)^0.976
//
// Measurements with non-positive diameter or height are skipped.
func (e *Estimator) fieldAGB(inventory []farm.TreeMeasurement) (tonnes float64, treesAnalyzed int) {
	var totalKg float64
	for _, tree := range inventory {
		if tree.DBHCm <= 0 || tree.HeightM <= 0 {
			continue
		}
		count := tree.Count
		if count < 1 {
			count = 1
		}
		rho := e.density.Lookup(tree.Species)
		agbKg := 0.0673 * math.Pow(rho*tree.DBHCm*tree.DBHCm*tree.HeightM, 0.976)
		totalKg += agbKg * float64(count)
		treesAnalyzed += count
	}
	return totalKg / 1000, treesAnalyzed
}

type satelliteEstimate struct {
	totalAgb    float64
	agbPerHa    float64
	methodology Method
	confidence  Confidence
	ndviMean    *float64
}

// satelliteAGB estimates biomass from the mean NDVI of the most recent
// one-year window, via a literature correlation for tropical and
// subtropical forests. Zero available images falls back to a fixed
// conservative default rather than failing.
func (e *Estimator) satelliteAGB(ctx context.Context, polygon *farm.Polygon, areaHa float64) (*satelliteEstimate, error) {
	geometry := polygon.GeoJSON()
	end := e.now()
	start := time.Date(end.Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC)

	filter := earthengine.CollectionFilter{
		Collection:      earthengine.Sentinel2Collection,
		Geometry:        geometry,
		StartDate:       start.Format("2006-01-02"),
		EndDate:         end.Format("2006-01-02"),
		MaxCloudPercent: maxCloudPercent,
	}

	count, err := earthengine.Retry(e.retry, "checking image collection size", func() (int, error) {
		return e.client.CollectionSize(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image collection: %w", err)
	}

	if count == 0 {
		e.logger.Warn("no satellite imagery available, using default estimation")
		return &satelliteEstimate{
			totalAgb:    defaultAgbPerHa * areaHa,
			agbPerHa:    defaultAgbPerHa,
			methodology: MethodDefaultEstimation,
			confidence:  ConfidenceLow,
		}, nil
	}

	stats, err := earthengine.Retry(e.retry, "calculating mean NDVI", func() (map[string]float64, error) {
		return e.client.ReduceRegion(ctx, earthengine.ReduceRegionRequest{
			Collection:      earthengine.Sentinel2Collection,
			Geometry:        geometry,
			Band:            "NDVI",
			Reducers:        []string{"mean"},
			StartDate:       filter.StartDate,
			EndDate:         filter.EndDate,
			MaxCloudPercent: maxCloudPercent,
			Scale:           ndviScaleMeters,
			MaxPixels:       maxPixels,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate mean NDVI: %w", err)
	}

	mean, ok := stats["NDVI_mean"]
	if !ok {
		mean = 0.5
	}

	// AGB (t/ha) ≈ 150·NDVI² for forested areas, linear below the
	// forest threshold. A stand-in correlation, not a trained model.
	var agbPerHa float64
	if mean > 0.3 {
		agbPerHa = math.Max(20, math.Min(200, 150*mean*mean))
	} else {
		agbPerHa = math.Max(5, 50*mean)
	}

	return &satelliteEstimate{
		totalAgb:    agbPerHa * areaHa,
		agbPerHa:    agbPerHa,
		methodology: MethodSatellite,
		confidence:  ConfidenceMedium,
		ndviMean:    &mean,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
