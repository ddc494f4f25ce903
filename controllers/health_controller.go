package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"natours-api/utils"
)

type HealthController struct {
	db *gorm.DB
}

func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// Check pings the database.
func (hc *HealthController) Check(c *gin.Context) {
	sqlDB, err := hc.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse{
			Status:  utils.StatusError,
			Message: "Database is unreachable",
		})
		return
	}
	utils.SendData(c, http.StatusOK, "database", "up")
}
