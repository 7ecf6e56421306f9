package router

import (
	"github.com/gin-gonic/gin"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter() *gin.Engine {
	r := gin.Default()

	api := handler.NewAPI(db.DB)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// API路由
	group := r.Group("/api")
	{
		group.GET("/habits", api.ListHabits)
		group.POST("/habits", api.CreateHabit)
		group.GET("/habits/:id", api.GetHabit)
		group.PUT("/habits/:id", api.UpdateHabit)
		group.DELETE("/habits/:id", api.DeleteHabit)
		group.POST("/habits/:id/archive", api.ArchiveHabit)
		group.POST("/habits/:id/unarchive", api.UnarchiveHabit)

		group.POST("/habits/:id/entries", api.CheckInHabit)
		group.GET("/habits/:id/entries", api.ListHabitEntries)
		group.DELETE("/habits/:id/entries/:entryId", api.DeleteHabitEntry)

		group.GET("/habits/:id/streak", api.GetHabitStreak)
		group.GET("/habits/:id/race", api.GetHabitRace)

		group.GET("/heatmap", api.GetHeatmap)
	}

	return r
}
