package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/service"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const dateFormat = "2006-01-02"

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

type habitPayload struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Type         string   `json:"type"`
	Direction    string   `json:"direction"`
	GoalValue    float64  `json:"goal_value"`
	Unit         string   `json:"unit"`
	MetricType   string   `json:"metric_type"`
	Frequency    string   `json:"frequency"`
	SpecificDays []string `json:"specific_days"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	filter := service.HabitFilter{
		IncludeArchived: c.Query("archived") == "true",
		Type:            c.Query("type"),
		Search:          c.Query("search"),
	}

	habits, err := a.habits.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情，附带渲染后的描述 HTML
func (a *API) GetHabit(c *gin.Context) {
	habit, ok := a.habitFromParam(c)
	if !ok {
		return
	}

	payload := habitToPayload(*habit)
	if rendered, err := renderMarkdown(habit.Description); err == nil {
		payload["description_html"] = rendered
	}

	c.JSON(http.StatusOK, gin.H{"habit": payload})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	habit, err := a.habits.Create(payloadToInput(payload))
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯配置
func (a *API) UpdateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	habit, err := a.habits.Update(c.Param("id"), payloadToInput(payload))
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// ArchiveHabit 归档习惯（软删除）
func (a *API) ArchiveHabit(c *gin.Context) {
	a.setArchived(c, true)
}

// UnarchiveHabit 取消归档
func (a *API) UnarchiveHabit(c *gin.Context) {
	a.setArchived(c, false)
}

func (a *API) setArchived(c *gin.Context, archived bool) {
	habit, err := a.habits.SetArchived(c.Param("id"), archived)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 硬删除习惯，级联清理条目与连胜记录
func (a *API) DeleteHabit(c *gin.Context) {
	if err := a.habits.Delete(c.Param("id")); err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetHeatmap 返回过去一年所有未归档习惯的完成热力图
func (a *API) GetHeatmap(c *gin.Context) {
	now := time.Now().In(time.Local)
	end := now.Format(dateFormat)
	start := now.AddDate(0, 0, -364).Format(dateFormat)

	entries, err := a.entries.HeatmapRange(start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取热力图数据失败")
		return
	}

	c.JSON(http.StatusOK, buildHeatmapPayload(entries, start, end))
}

type heatmapHabit struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func buildHeatmapPayload(entries []service.HeatmapEntry, start, end string) gin.H {
	dayMap := make(map[string][]heatmapHabit)
	legendMap := make(map[uint]heatmapHabit)

	for _, entry := range entries {
		habit := heatmapHabit{ID: entry.HabitID, Name: entry.HabitName, Type: entry.HabitType}
		dayMap[entry.EntryDate] = append(dayMap[entry.EntryDate], habit)
		if _, exists := legendMap[habit.ID]; !exists {
			legendMap[habit.ID] = habit
		}
	}

	days := make([]gin.H, 0, len(dayMap))
	for date, habits := range dayMap {
		days = append(days, gin.H{"date": date, "habits": habits})
	}

	legend := make([]heatmapHabit, 0, len(legendMap))
	for _, item := range legendMap {
		legend = append(legend, item)
	}

	return gin.H{
		"range":  gin.H{"start": start, "end": end},
		"days":   days,
		"habits": legend,
		"summary": gin.H{
			"total_entries": len(entries),
			"active_days":   len(dayMap),
			"habit_count":   len(legend),
		},
	}
}

// habitFromParam 解析路径中的习惯 ID 并加载习惯
func (a *API) habitFromParam(c *gin.Context) (*db.Habit, bool) {
	habit, err := a.habits.Get(c.Param("id"))
	if err != nil {
		handleHabitError(c, err)
		return nil, false
	}
	return habit, true
}

func payloadToInput(payload habitPayload) service.HabitInput {
	return service.HabitInput{
		Name:         payload.Name,
		Description:  payload.Description,
		Type:         payload.Type,
		Direction:    payload.Direction,
		GoalValue:    payload.GoalValue,
		Unit:         payload.Unit,
		MetricType:   payload.MetricType,
		Frequency:    payload.Frequency,
		SpecificDays: payload.SpecificDays,
	}
}

func habitToPayload(habit db.Habit) gin.H {
	item := gin.H{
		"id":          habit.PublicID,
		"name":        habit.Name,
		"description": habit.Description,
		"type":        habit.Type,
		"direction":   habit.Direction,
		"goal_value":  habit.GoalValue,
		"unit":        habit.Unit,
		"metric_type": habit.MetricType,
		"frequency":   habit.Frequency,
		"archived":    habit.Archived,
	}

	if habit.SpecificDays != "" {
		item["specific_days"] = strings.Split(habit.SpecificDays, ",")
	}

	return item
}

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}

func handleHabitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrHabitInvalidInput):
		respondError(c, http.StatusBadRequest, "习惯配置无效")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
