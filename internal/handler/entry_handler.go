package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/service"
)

type entryPayload struct {
	Date           string  `json:"date"` // 2006-01-02，缺省为今天
	Value          float64 `json:"value"`
	IsAttempt      bool    `json:"is_attempt"`
	ElapsedSeconds float64 `json:"elapsed_seconds"` // 计时尝试的耗时，换算为指标数值
}

// CheckInHabit 写入一条打卡记录
// 普通打卡每天一条（重复提交原地更新），attempt 打卡允许同一天多条
func (a *API) CheckInHabit(c *gin.Context) {
	habit, ok := a.habitFromParam(c)
	if !ok {
		return
	}

	var payload entryPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date := strings.TrimSpace(payload.Date)
	if date == "" {
		date = service.Today()
	}

	value := payload.Value
	if payload.IsAttempt && payload.ElapsedSeconds > 0 {
		value = service.AttemptValueFromElapsed(habit, time.Duration(payload.ElapsedSeconds*float64(time.Second)))
	}

	entry, err := a.entries.CheckIn(habit, service.EntryInput{
		Date:      date,
		Value:     value,
		IsAttempt: payload.IsAttempt,
	}, service.Today())
	if err != nil {
		handleEntryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entryToPayload(*entry)})
}

// ListHabitEntries 返回习惯的打卡条目，支持 start/end 日期过滤
func (a *API) ListHabitEntries(c *gin.Context) {
	habit, ok := a.habitFromParam(c)
	if !ok {
		return
	}

	filter := service.EntryFilter{
		Start: strings.TrimSpace(c.Query("start")),
		End:   strings.TrimSpace(c.Query("end")),
	}
	if filter.Start != "" && !service.IsValidDate(filter.Start) {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	}
	if filter.End != "" && !service.IsValidDate(filter.End) {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	entries, err := a.entries.ListForHabit(habit.ID, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取打卡记录失败")
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryToPayload(entry))
	}

	c.JSON(http.StatusOK, gin.H{"entries": items})
}

// DeleteHabitEntry 删除单条打卡记录
func (a *API) DeleteHabitEntry(c *gin.Context) {
	habit, ok := a.habitFromParam(c)
	if !ok {
		return
	}

	entryID, err := parseUintParam(c, "entryId")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的打卡记录ID")
		return
	}

	if err := a.entries.Delete(habit, entryID, service.Today()); err != nil {
		handleEntryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func entryToPayload(entry db.HabitEntry) gin.H {
	return gin.H{
		"id":         entry.ID,
		"date":       entry.EntryDate,
		"value":      entry.Value,
		"is_attempt": entry.IsAttempt,
		"created_at": entry.CreatedAt.Format(time.RFC3339),
	}
}

func handleEntryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEntryNotFound):
		respondError(c, http.StatusNotFound, "打卡记录不存在")
	case errors.Is(err, service.ErrEntryInvalidInput):
		respondError(c, http.StatusBadRequest, "打卡参数无效")
	default:
		respondError(c, http.StatusInternalServerError, "保存打卡记录失败")
	}
}
