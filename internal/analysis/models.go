package analysis

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Analysis is one persisted farm analysis run. The full output document
// is stored as JSONB; the scalar columns exist for listing and filtering
// without unpacking the document.
type Analysis struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FarmID      string         `gorm:"not null;uniqueIndex" json:"farm_id"`
	RunID       uuid.UUID      `gorm:"type:uuid;index" json:"run_id"`
	Name        string         `json:"name"`
	Owner       string         `json:"owner"`
	AreaHa      float64        `json:"area_ha"`
	Compliant   *bool          `json:"compliant,omitempty"`
	CarbonTCO2e *float64       `json:"carbon_tco2e,omitempty"`
	NDVIMean    *float64       `json:"ndvi_mean,omitempty"`
	Document    datatypes.JSON `json:"document"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// FarmInfo identifies the analyzed farm inside the output document.
type FarmInfo struct {
	Name     string      `json:"name"`
	FarmID   string      `json:"farmId"`
	Owner    string      `json:"owner"`
	Location interface{} `json:"location"`
}

// Period is the analyzed date range echoed into the document.
type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}
