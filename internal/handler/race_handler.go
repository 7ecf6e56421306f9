package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/service"
)

// GetHabitStreak 返回习惯的当前连胜与历史连胜记录
func (a *API) GetHabitStreak(c *gin.Context) {
	habit, ok := a.habitFromParam(c)
	if !ok {
		return
	}

	active, err := a.streaks.ActiveStreak(habit.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取连胜数据失败")
		return
	}

	history, err := a.streaks.ListStreaks(habit.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取连胜数据失败")
		return
	}

	payload := gin.H{"history": serializeStreaks(history)}
	if active != nil {
		payload["current"] = serializeStreak(*active)
	}

	c.JSON(http.StatusOK, payload)
}

// GetHabitRace 返回习惯的排行快照
func (a *API) GetHabitRace(c *gin.Context) {
	race, err := a.races.CalculateRaceData(c.Param("id"), service.Today())
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"race": race})
}

func serializeStreaks(streaks []db.Streak) []gin.H {
	items := make([]gin.H, 0, len(streaks))
	for _, streak := range streaks {
		items = append(items, serializeStreak(streak))
	}
	return items
}

func serializeStreak(streak db.Streak) gin.H {
	item := gin.H{
		"start_date":         streak.StartDate,
		"length":             streak.Length,
		"is_active":          streak.IsActive,
		"is_personal_record": streak.IsPersonalRecord,
	}
	if streak.EndDate != "" {
		item["end_date"] = streak.EndDate
	}
	return item
}
