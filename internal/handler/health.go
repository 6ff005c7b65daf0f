package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shoplane/accounts/internal/constants"
	"github.com/shoplane/accounts/pkg/redis"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	cache *redis.Client
}

func NewHealthHandler(db *gorm.DB, cache *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unavailable"
		}
	} else {
		dbStatus = "unavailable"
	}

	cacheStatus := "disabled"
	if h.cache.IsEnabled() {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "unavailable"
		}
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    dbStatus,
		"database":  dbStatus,
		"cache":     cacheStatus,
		"version":   constants.AppVersion,
		"timestamp": time.Now(),
	})
}
