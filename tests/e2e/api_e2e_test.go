package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/router"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler http.Handler
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.Habit{}, &db.HabitEntry{}, &db.Streak{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	db.DB = gdb
	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return &e2eSuite{handler: router.SetupRouter()}
}

func (s *e2eSuite) do(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	resp := w.Result()
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func (s *e2eSuite) expect(t *testing.T, method, path string, payload any, status int) []byte {
	t.Helper()
	resp, data := s.do(t, method, path, payload)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, status, resp.StatusCode, data)
	}
	return data
}

func TestE2E_HabitWorkflow(t *testing.T) {
	suite := newE2ESuite(t)

	// 健康检查
	suite.expect(t, http.MethodGet, "/ping", nil, http.StatusOK)

	// 创建布尔习惯
	data := suite.expect(t, http.MethodPost, "/api/habits", map[string]any{
		"name":        "晨间冥想",
		"description": "每天 *10 分钟*",
		"type":        "boolean",
		"frequency":   "daily",
	}, http.StatusOK)

	var created struct {
		Habit struct {
			ID string `json:"id"`
		} `json:"habit"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("failed to decode habit: %v", err)
	}
	habitID := created.Habit.ID
	if habitID == "" {
		t.Fatal("expected a habit id")
	}

	// 连续三天打卡（含今天）
	for offset := -2; offset <= 0; offset++ {
		date := time.Now().AddDate(0, 0, offset).Format("2006-01-02")
		suite.expect(t, http.MethodPost, fmt.Sprintf("/api/habits/%s/entries", habitID), map[string]any{
			"date":  date,
			"value": 1,
		}, http.StatusOK)
	}

	// 连胜应为 3 且是个人纪录
	data = suite.expect(t, http.MethodGet, fmt.Sprintf("/api/habits/%s/streak", habitID), nil, http.StatusOK)
	var streakResp struct {
		Current struct {
			Length           int  `json:"length"`
			IsActive         bool `json:"is_active"`
			IsPersonalRecord bool `json:"is_personal_record"`
		} `json:"current"`
	}
	if err := json.Unmarshal(data, &streakResp); err != nil {
		t.Fatalf("failed to decode streak: %v", err)
	}
	if streakResp.Current.Length != 3 || !streakResp.Current.IsActive || !streakResp.Current.IsPersonalRecord {
		t.Fatalf("unexpected streak: %+v", streakResp.Current)
	}

	// 排行：历史连胜长度 {1,2,3}，当前名次第 1
	data = suite.expect(t, http.MethodGet, fmt.Sprintf("/api/habits/%s/race", habitID), nil, http.StatusOK)
	var raceResp struct {
		Race struct {
			Positions []struct {
				Value            float64 `json:"value"`
				IsPersonalRecord bool    `json:"is_personal_record"`
				IsCurrent        bool    `json:"is_current"`
			} `json:"positions"`
			CurrentPosition int `json:"current_position"`
			TotalPositions  int `json:"total_positions"`
		} `json:"race"`
	}
	if err := json.Unmarshal(data, &raceResp); err != nil {
		t.Fatalf("failed to decode race: %v", err)
	}
	if raceResp.Race.TotalPositions != 3 {
		t.Fatalf("expected 3 total positions, got %d", raceResp.Race.TotalPositions)
	}
	if raceResp.Race.CurrentPosition != 1 {
		t.Fatalf("expected current position 1, got %d", raceResp.Race.CurrentPosition)
	}
	if !raceResp.Race.Positions[0].IsPersonalRecord || !raceResp.Race.Positions[0].IsCurrent {
		t.Fatalf("expected leading streak to be current personal record, got %+v", raceResp.Race.Positions[0])
	}

	// 热力图包含最近的打卡
	data = suite.expect(t, http.MethodGet, "/api/heatmap", nil, http.StatusOK)
	var heatmapResp struct {
		Summary struct {
			TotalEntries int `json:"total_entries"`
			HabitCount   int `json:"habit_count"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &heatmapResp); err != nil {
		t.Fatalf("failed to decode heatmap: %v", err)
	}
	if heatmapResp.Summary.TotalEntries != 3 || heatmapResp.Summary.HabitCount != 1 {
		t.Fatalf("unexpected heatmap summary: %+v", heatmapResp.Summary)
	}

	// 条目列表与删除
	data = suite.expect(t, http.MethodGet, fmt.Sprintf("/api/habits/%s/entries", habitID), nil, http.StatusOK)
	var entriesResp struct {
		Entries []struct {
			ID uint `json:"id"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(data, &entriesResp); err != nil {
		t.Fatalf("failed to decode entries: %v", err)
	}
	if len(entriesResp.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entriesResp.Entries))
	}
	suite.expect(t, http.MethodDelete,
		fmt.Sprintf("/api/habits/%s/entries/%d", habitID, entriesResp.Entries[0].ID), nil, http.StatusOK)

	// 归档后列表默认不可见
	suite.expect(t, http.MethodPost, fmt.Sprintf("/api/habits/%s/archive", habitID), nil, http.StatusOK)
	data = suite.expect(t, http.MethodGet, "/api/habits", nil, http.StatusOK)
	var listResp struct {
		Habits []any `json:"habits"`
	}
	if err := json.Unmarshal(data, &listResp); err != nil {
		t.Fatalf("failed to decode habits: %v", err)
	}
	if len(listResp.Habits) != 0 {
		t.Fatalf("archived habit should be hidden, got %d", len(listResp.Habits))
	}

	// 硬删除后一切随之消失
	suite.expect(t, http.MethodDelete, "/api/habits/"+habitID, nil, http.StatusOK)
	suite.expect(t, http.MethodGet, "/api/habits/"+habitID, nil, http.StatusNotFound)
	suite.expect(t, http.MethodGet, fmt.Sprintf("/api/habits/%s/race", habitID), nil, http.StatusNotFound)
}
