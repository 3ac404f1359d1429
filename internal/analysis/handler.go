package analysis

import (
	"io"
	"net/http"

	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes the analysis pipeline over HTTP.
type Handler struct {
	service *Service
	repo    Repository
	logger  *zap.Logger
}

// NewHandler creates the HTTP handler. The repository may be nil when
// persistence is disabled; analyses are then computed but not stored.
func NewHandler(service *Service, repo Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// RegisterRoutes mounts the analysis endpoints on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	analyses := rg.Group("/analyses")
	{
		analyses.POST("", h.Create)
		analyses.GET("", h.List)
		analyses.GET("/:farmId", h.Get)
	}
}

// Create accepts a farm description (GeoJSON FeatureCollection, Feature
// or bespoke polygon JSON) and runs the full pipeline on it.
func (h *Handler) Create(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 10<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	record, err := farm.ParseRecord(body, "request")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := h.service.Analyze(c.Request.Context(), record, Options{})

	if h.repo != nil {
		stored, err := NewRecord(doc, uuid.New())
		if err == nil {
			err = h.repo.Save(c.Request.Context(), stored)
		}
		if err != nil {
			// Persistence failure should not hide a computed result.
			h.logger.Error("failed to persist analysis",
				zap.String("farmId", record.FarmID), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) Get(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence is not configured"})
		return
	}

	farmID := c.Param("farmId")
	record, err := h.repo.GetByFarmID(c.Request.Context(), farmID)
	if err != nil {
		h.logger.Error("failed to load analysis", zap.String("farmId", farmID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis found for farm"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) List(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence is not configured"})
		return
	}

	records, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list analyses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analyses": records, "count": len(records)})
}
