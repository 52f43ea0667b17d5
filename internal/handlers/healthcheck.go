package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check reports liveness plus database reachability so orchestrators can
// distinguish a hung process from a lost database.
func (h *HealthHandler) Check(c *gin.Context) {
	dbStatus := "ok"
	code := http.StatusOK
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": "ok", "db": dbStatus})
}
