package handlers

import (
	"net/http"

	"github.com/Conceptual-Machines/melody-api/internal/database"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports whether the model and history store are usable
type HealthHandler struct {
	db        *gorm.DB
	modelName string
	vocabSize int
}

func NewHealthHandler(db *gorm.DB, modelName string, vocabSize int) *HealthHandler {
	return &HealthHandler{db: db, modelName: modelName, vocabSize: vocabSize}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		if err := database.Ping(h.db); err != nil {
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"model": gin.H{
			"name":            h.modelName,
			"vocabulary_size": h.vocabSize,
		},
		"database": dbStatus,
	})
}
