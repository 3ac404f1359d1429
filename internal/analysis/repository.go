package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists analysis runs.
type Repository interface {
	Save(ctx context.Context, record *Analysis) error
	GetByFarmID(ctx context.Context, farmID string) (*Analysis, error)
	List(ctx context.Context) ([]Analysis, error)
}

type postgresRepository struct {
	db *gorm.DB
}

// NewRepository creates a postgres-backed repository.
func NewRepository(db *gorm.DB) Repository {
	return &postgresRepository{db: db}
}

// Migrate creates or updates the analyses table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Analysis{})
}

// Save upserts by farm id: re-analyzing a farm replaces its stored run.
func (r *postgresRepository) Save(ctx context.Context, record *Analysis) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "farm_id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save analysis for farm %s: %w", record.FarmID, err)
	}
	return nil
}

func (r *postgresRepository) GetByFarmID(ctx context.Context, farmID string) (*Analysis, error) {
	var record Analysis
	err := r.db.WithContext(ctx).Where("farm_id = ?", farmID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis for farm %s: %w", farmID, err)
	}
	return &record, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Analysis, error) {
	var records []Analysis
	err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return records, nil
}

// NewRecord flattens a document into its persistence row.
func NewRecord(doc *Document, runID uuid.UUID) (*Analysis, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis document: %w", err)
	}

	summary := Summarize(doc)
	record := &Analysis{
		FarmID:      doc.FarmInfo.FarmID,
		RunID:       runID,
		Name:        doc.FarmInfo.Name,
		AreaHa:      summary.AreaHa,
		Compliant:   summary.Compliant,
		CarbonTCO2e: summary.CarbonTCO2e,
		NDVIMean:    summary.NDVIMean,
		Document:    raw,
	}
	if doc.FarmInfo.Owner != "N/A" {
		record.Owner = doc.FarmInfo.Owner
	}
	return record, nil
}
