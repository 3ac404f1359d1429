package ndvi

import (
	"context"
	"errors"
	"testing"
	"time"

	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ReduceRegion(ctx context.Context, req earthengine.ReduceRegionRequest) (map[string]float64, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *mockClient) CollectionSize(ctx context.Context, filter earthengine.CollectionFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockClient) AggregateMean(ctx context.Context, filter earthengine.CollectionFilter, property string) (float64, error) {
	args := m.Called(ctx, filter, property)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockClient) ThumbnailURL(ctx context.Context, req earthengine.ThumbnailRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func testPolygon() *farm.Polygon {
	return &farm.Polygon{
		Type: "Polygon",
		Coordinates: [][][2]float64{{
			{-74.0, 4.0}, {-73.99, 4.0}, {-73.99, 4.01}, {-74.0, 4.01}, {-74.0, 4.0},
		}},
	}
}

func noSleepPolicy() earthengine.RetryPolicy {
	return earthengine.RetryPolicy{Sleep: func(time.Duration) {}}
}

func TestCalculateReturnsRoundedStatistics(t *testing.T) {
	client := new(mockClient)
	client.On("CollectionSize", mock.Anything, mock.Anything).Return(12, nil)
	client.On("AggregateMean", mock.Anything, mock.Anything, "CLOUDY_PIXEL_PERCENTAGE").
		Return(7.4567, nil)
	client.On("ReduceRegion", mock.Anything, mock.Anything).Return(map[string]float64{
		"NDVI_mean":   0.61237,
		"NDVI_median": 0.63001,
		"NDVI_stdDev": 0.08119,
		"NDVI_min":    0.12,
		"NDVI_max":    0.89,
	}, nil)
	client.On("ThumbnailURL", mock.Anything, mock.Anything).
		Return("https://img.example.com/ndvi.png", nil)

	calc := NewCalculator(client, noSleepPolicy(), nil)
	stats, err := calc.Calculate(context.Background(), testPolygon(), "2025-01-01", "2025-12-31")

	require.NoError(t, err)
	assert.Equal(t, 0.6124, stats.Mean)
	assert.Equal(t, 0.63, stats.Median)
	assert.Equal(t, 0.0812, stats.StdDev)
	assert.Equal(t, 12, stats.ImagesUsed)
	assert.Equal(t, "2025-01-01 to 2025-12-31", stats.DateRange)
	require.NotNil(t, stats.CloudCoverage)
	assert.Equal(t, 7.46, *stats.CloudCoverage)
	assert.Equal(t, "https://img.example.com/ndvi.png", stats.ImageURL)
}

func TestCalculateFailsWithoutImagery(t *testing.T) {
	client := new(mockClient)
	client.On("CollectionSize", mock.Anything, mock.Anything).Return(0, nil)

	calc := NewCalculator(client, noSleepPolicy(), nil)
	_, err := calc.Calculate(context.Background(), testPolygon(), "2025-01-01", "2025-12-31")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoImagery)
	client.AssertNotCalled(t, "ReduceRegion", mock.Anything, mock.Anything)
}

func TestCalculateSurvivesSoftFailures(t *testing.T) {
	client := new(mockClient)
	client.On("CollectionSize", mock.Anything, mock.Anything).Return(3, nil)
	client.On("AggregateMean", mock.Anything, mock.Anything, "CLOUDY_PIXEL_PERCENTAGE").
		Return(0.0, errors.New("property unavailable"))
	client.On("ReduceRegion", mock.Anything, mock.Anything).Return(map[string]float64{
		"NDVI_mean": 0.4, "NDVI_median": 0.4, "NDVI_stdDev": 0.1,
		"NDVI_min": 0.1, "NDVI_max": 0.7,
	}, nil)
	client.On("ThumbnailURL", mock.Anything, mock.Anything).
		Return("", errors.New("render failed"))

	calc := NewCalculator(client, noSleepPolicy(), nil)
	stats, err := calc.Calculate(context.Background(), testPolygon(), "2025-01-01", "2025-12-31")

	require.NoError(t, err)
	assert.Nil(t, stats.CloudCoverage)
	assert.Empty(t, stats.ImageURL)
	assert.Equal(t, 0.4, stats.Mean)
}

func TestCalculateRetriesTransientProviderErrors(t *testing.T) {
	client := new(mockClient)
	transient := &earthengine.ProviderError{Op: "reduceRegion", Message: "computation timeout"}

	client.On("CollectionSize", mock.Anything, mock.Anything).Return(5, nil)
	client.On("AggregateMean", mock.Anything, mock.Anything, "CLOUDY_PIXEL_PERCENTAGE").
		Return(3.0, nil)
	client.On("ReduceRegion", mock.Anything, mock.Anything).Return(nil, transient).Once()
	client.On("ReduceRegion", mock.Anything, mock.Anything).Return(map[string]float64{
		"NDVI_mean": 0.5, "NDVI_median": 0.5, "NDVI_stdDev": 0.05,
		"NDVI_min": 0.3, "NDVI_max": 0.7,
	}, nil)
	client.On("ThumbnailURL", mock.Anything, mock.Anything).Return("https://img.example.com/n.png", nil)

	policy := noSleepPolicy()
	policy.MaxRetries = 3

	calc := NewCalculator(client, policy, nil)
	stats, err := calc.Calculate(context.Background(), testPolygon(), "2025-01-01", "2025-12-31")

	require.NoError(t, err)
	assert.Equal(t, 0.5, stats.Mean)
	client.AssertNumberOfCalls(t, "ReduceRegion", 2)
}

func TestCalculateEmptyStatisticsIsAnError(t *testing.T) {
	client := new(mockClient)
	client.On("CollectionSize", mock.Anything, mock.Anything).Return(2, nil)
	client.On("AggregateMean", mock.Anything, mock.Anything, "CLOUDY_PIXEL_PERCENTAGE").
		Return(1.0, nil)
	client.On("ReduceRegion", mock.Anything, mock.Anything).Return(map[string]float64{}, nil)

	calc := NewCalculator(client, noSleepPolicy(), nil)
	_, err := calc.Calculate(context.Background(), testPolygon(), "2025-01-01", "2025-12-31")

	assert.ErrorContains(t, err, "empty result")
}
