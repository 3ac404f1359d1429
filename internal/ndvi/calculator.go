// Package ndvi computes vegetation-index statistics for a farm polygon
// from the remote imagery provider.
package ndvi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"go.uber.org/zap"
)

const (
	maxCloudPercent = 20.0
	scaleMeters     = 10
	maxPixels       = 1e9
	thumbnailSize   = 512
)

// ErrNoImagery signals that no usable satellite images exist for the
// requested window. The NDVI branch treats it as a failure; the carbon
// engine treats the equivalent condition as a soft fallback.
var ErrNoImagery = errors.New("no satellite images found for the requested period")

// Statistics holds the NDVI composite statistics for one period.
type Statistics struct {
	Mean          float64   `json:"mean"`
	Median        float64   `json:"median"`
	StdDev        float64   `json:"std"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	CloudCoverage *float64  `json:"cloudCoverage,omitempty"`
	ImagesUsed    int       `json:"imagesUsed"`
	DateRange     string    `json:"dateRange"`
	CalculatedAt  time.Time `json:"calculatedAt"`
}

// Calculator derives NDVI statistics through the resilient executor.
type Calculator struct {
	client earthengine.Client
	retry  earthengine.RetryPolicy
	logger *zap.Logger
}

// NewCalculator creates an NDVI calculator. A nil logger is replaced
// with a no-op logger.
func NewCalculator(client earthengine.Client, retry earthengine.RetryPolicy, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry.Logger = logger
	return &Calculator{client: client, retry: retry, logger: logger}
}

// Calculate computes NDVI statistics for the polygon over [startDate,
// endDate]. Thumbnail and cloud-coverage failures are soft; statistics
// failures propagate.
func (c *Calculator) Calculate(ctx context.Context, polygon *farm.Polygon, startDate, endDate string) (*Statistics, error) {
	geometry := polygon.GeoJSON()
	filter := earthengine.CollectionFilter{
		Collection:      earthengine.Sentinel2Collection,
		Geometry:        geometry,
		StartDate:       startDate,
		EndDate:         endDate,
		MaxCloudPercent: maxCloudPercent,
	}

	count, err := earthengine.Retry(c.retry, "checking image collection size", func() (int, error) {
		return c.client.CollectionSize(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image collection: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w (%s to %s)", ErrNoImagery, startDate, endDate)
	}
	c.logger.Debug("found images in collection", zap.Int("count", count))

	var cloudCoverage *float64
	cloud, err := earthengine.Retry(c.retry, "calculating cloud coverage", func() (float64, error) {
		return c.client.AggregateMean(ctx, filter, "CLOUDY_PIXEL_PERCENTAGE")
	})
	if err != nil {
		c.logger.Warn("could not calculate cloud coverage", zap.Error(err))
	} else {
		rounded := round2(cloud)
		cloudCoverage = &rounded
	}

	stats, err := earthengine.Retry(c.retry, "calculating NDVI statistics", func() (map[string]float64, error) {
		return c.client.ReduceRegion(ctx, earthengine.ReduceRegionRequest{
			Collection:      earthengine.Sentinel2Collection,
			Geometry:        geometry,
			Band:            "NDVI",
			Reducers:        []string{"mean", "median", "stdDev", "min", "max"},
			StartDate:       startDate,
			EndDate:         endDate,
			MaxCloudPercent: maxCloudPercent,
			Scale:           scaleMeters,
			MaxPixels:       maxPixels,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate NDVI statistics: %w", err)
	}
	if len(stats) == 0 {
		return nil, errors.New("statistics calculation returned empty result")
	}

	result := &Statistics{
		Mean:          round4(stats["NDVI_mean"]),
		Median:        round4(stats["NDVI_median"]),
		StdDev:        round4(stats["NDVI_stdDev"]),
		Min:           round4(stats["NDVI_min"]),
		Max:           round4(stats["NDVI_max"]),
		CloudCoverage: cloudCoverage,
		ImagesUsed:    count,
		DateRange:     fmt.Sprintf("%s to %s", startDate, endDate),
		CalculatedAt:  time.Now(),
	}

	thumbRetry := c.retry
	thumbRetry.MaxRetries = 2
	thumbRetry.Delay = time.Second
	url, err := earthengine.Retry(thumbRetry, "generating thumbnail", func() (string, error) {
		return c.client.ThumbnailURL(ctx, earthengine.ThumbnailRequest{
			Collection:      earthengine.Sentinel2Collection,
			Geometry:        geometry,
			Band:            "NDVI",
			StartDate:       startDate,
			EndDate:         endDate,
			MaxCloudPercent: maxCloudPercent,
			Min:             0,
			Max:             1,
			Palette:         []string{"red", "yellow", "green"},
			Dimensions:      thumbnailSize,
			Format:          "png",
		})
	})
	if err != nil {
		c.logger.Warn("could not generate thumbnail", zap.Error(err))
	} else {
		result.ImageURL = url
	}

	return result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
