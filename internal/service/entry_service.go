package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/lock"
	"gorm.io/gorm"
)

var (
	// ErrEntryNotFound 在指定条目不存在时返回
	ErrEntryNotFound = errors.New("habit entry not found")
	// ErrEntryInvalidInput 当打卡参数不合法时返回
	ErrEntryInvalidInput = errors.New("invalid habit entry")
)

// EntryService 负责打卡条目的写入与查询
// 每次写操作都在习惯级别的锁内完成“写条目 → 重算连胜”，
// 保证同一习惯的变更串行执行，习惯之间互不影响

type EntryService struct {
	db      *gorm.DB
	streaks *StreakService
	locks   *lock.HabitLock
}

// EntryInput 定义打卡时的输入对象
type EntryInput struct {
	Date      string
	Value     float64
	IsAttempt bool
}

// EntryFilter 指定查询区间（Start/End 为空表示不限制）
type EntryFilter struct {
	Start string
	End   string
}

// HeatmapEntry 表示热力图中的单日完成数据
type HeatmapEntry struct {
	EntryDate string
	HabitID   uint
	HabitName string
	HabitType string
}

// NewEntryService 构造 EntryService
func NewEntryService(gdb *gorm.DB, streaks *StreakService, locks *lock.HabitLock) *EntryService {
	return &EntryService{db: gdb, streaks: streaks, locks: locks}
}

// CheckIn 写入一条打卡记录并重算连胜
// 非 attempt 条目满足 (habit, date) 唯一：已存在时原地更新数值；
// attempt 条目每次都新建，用于同一天可重复的计时尝试
func (s *EntryService) CheckIn(habit *db.Habit, input EntryInput, today string) (*db.HabitEntry, error) {
	date := strings.TrimSpace(input.Date)
	if !IsValidDate(date) {
		return nil, fmt.Errorf("%w: bad date %q", ErrEntryInvalidInput, input.Date)
	}
	if input.Value < 0 {
		return nil, fmt.Errorf("%w: value must not be negative", ErrEntryInvalidInput)
	}
	if habit.Type == db.HabitTypeBoolean && input.Value != 0 && input.Value != 1 {
		return nil, fmt.Errorf("%w: boolean habit accepts only 0 or 1", ErrEntryInvalidInput)
	}

	var entry *db.HabitEntry
	err := s.locks.WithLock(habit.ID, func() error {
		saved, err := s.upsert(habit, date, input)
		if err != nil {
			return err
		}
		entry = saved
		return s.recompute(habit, today)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *EntryService) upsert(habit *db.Habit, date string, input EntryInput) (*db.HabitEntry, error) {
	if input.IsAttempt {
		entry := db.HabitEntry{
			HabitID:   habit.ID,
			EntryDate: date,
			Value:     input.Value,
			IsAttempt: true,
		}
		if err := s.db.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("create attempt entry: %w", err)
		}
		return &entry, nil
	}

	var existing db.HabitEntry
	err := s.db.Where("habit_id = ? AND entry_date = ? AND is_attempt = ?", habit.ID, date, false).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Value = input.Value
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("update entry: %w", err)
		}
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry := db.HabitEntry{
			HabitID:   habit.ID,
			EntryDate: date,
			Value:     input.Value,
		}
		if err := s.db.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("create entry: %w", err)
		}
		return &entry, nil
	default:
		return nil, fmt.Errorf("find entry: %w", err)
	}
}

// Delete 删除指定条目并重算连胜
func (s *EntryService) Delete(habit *db.Habit, entryID uint, today string) error {
	return s.locks.WithLock(habit.ID, func() error {
		var entry db.HabitEntry
		if err := s.db.Where("id = ? AND habit_id = ?", entryID, habit.ID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("find entry: %w", err)
		}

		if err := s.db.Delete(&entry).Error; err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		return s.recompute(habit, today)
	})
}

// recompute 在条目变更后重算连胜缓存，排行数据按需在读取时重建
func (s *EntryService) recompute(habit *db.Habit, today string) error {
	entries, err := s.ListForHabit(habit.ID, EntryFilter{})
	if err != nil {
		return err
	}
	return s.streaks.UpdateStreaks(habit, entries, today)
}

// ListForHabit 返回习惯的打卡条目，按日期升序、创建时间升序
func (s *EntryService) ListForHabit(habitID uint, filter EntryFilter) ([]db.HabitEntry, error) {
	var entries []db.HabitEntry

	query := s.db.Where("habit_id = ?", habitID)
	if filter.Start != "" {
		query = query.Where("entry_date >= ?", filter.Start)
	}
	if filter.End != "" {
		query = query.Where("entry_date <= ?", filter.End)
	}

	if err := query.Order("entry_date ASC, created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// mostRecentEntry 返回“最近一次”的条目
// 全局统一的新旧次序：created_at 降序，id 作为最终平手判定，
// 连胜与排行计算共用这一个定义，避免各处比较器悄悄分叉
func mostRecentEntry(entries []db.HabitEntry) *db.HabitEntry {
	var latest *db.HabitEntry
	for i := range entries {
		entry := &entries[i]
		if latest == nil {
			latest = entry
			continue
		}
		if entry.CreatedAt.After(latest.CreatedAt) {
			latest = entry
			continue
		}
		if entry.CreatedAt.Equal(latest.CreatedAt) && entry.ID > latest.ID {
			latest = entry
		}
	}
	return latest
}

// AttemptValueFromElapsed 把计时器的耗时换算成指标数值
// duration 类指标记分钟（保留两位），其余直接记秒
func AttemptValueFromElapsed(habit *db.Habit, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if strings.EqualFold(strings.TrimSpace(habit.MetricType), "duration") {
		return math.Round(seconds/60*100) / 100
	}
	return math.Round(seconds*100) / 100
}

// HeatmapRange 返回区间内所有未归档习惯的完成数据
func (s *EntryService) HeatmapRange(start, end string) ([]HeatmapEntry, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	var rows []HeatmapEntry
	if err := s.db.Model(&db.HabitEntry{}).
		Select("habit_entries.entry_date AS entry_date, habit_entries.habit_id AS habit_id, habits.name AS habit_name, habits.type AS habit_type").
		Joins("JOIN habits ON habits.id = habit_entries.habit_id").
		Where("habits.archived = ?", false).
		Where("habit_entries.value > 0").
		Where("habit_entries.entry_date BETWEEN ? AND ?", start, end).
		Order("habit_entries.entry_date ASC, habits.name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap entries: %w", err)
	}

	return rows, nil
}
