package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ServiceName = "personas-api"
	Version     = "1.0.0"
)

// Handler serves the service description endpoints.
type Handler struct {
	driver string
}

func NewHandler(driver string) *Handler {
	return &Handler{driver: driver}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/", h.Root)
	r.GET("/info", h.Info)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "Personas API",
		"version":  Version,
		"database": h.driver,
		"endpoints": gin.H{
			"personas": "/api/v1/personas",
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}

func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":      ServiceName,
		"version":      Version,
		"description":  "Registry of attended persons (patients) for a medical services platform",
		"database":     h.driver,
		"technologies": []string{"Go", "gin", "PostgreSQL", "sqlx", "zerolog", "prometheus"},
	})
}
