package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/habitrace/internal/db"
	"gorm.io/gorm"
)

// maxStreakLookback 回溯天数的硬上限，防止脏数据导致无界循环
const maxStreakLookback = 1000

// StreakService 负责连胜的计算与缓存记录维护
// 计算本身是纯函数（习惯 + 条目 + 当天日期），持久化只是在结果外包了一层

type StreakService struct {
	db *gorm.DB
}

// StreakResult 当前连胜的计算结果
type StreakResult struct {
	Length    int
	StartDate string
}

// NewStreakService 构造 StreakService
func NewStreakService(gdb *gorm.DB) *StreakService {
	return &StreakService{db: gdb}
}

// ShouldHaveEntry 判断习惯在某一天是否要求打卡
// daily 每天都要求；weekly 目前同样每天计入（未按周约束，行为有意保留）
// specific_days 仅在配置的星期 token 命中时要求
func ShouldHaveEntry(habit *db.Habit, date string) bool {
	if habit.Frequency != db.FrequencySpecificDays {
		return true
	}

	token := weekdayToken(date)
	for _, day := range strings.Split(habit.SpecificDays, ",") {
		if strings.TrimSpace(day) == token {
			return true
		}
	}
	return false
}

// entryCompletesDay 判断某条记录是否算作当日完成
// 布尔习惯要求 value==1，量化习惯要求 value>0
func entryCompletesDay(habit *db.Habit, entry db.HabitEntry) bool {
	if habit.Type == db.HabitTypeBoolean {
		return entry.Value == 1
	}
	return entry.Value > 0
}

// completedDates 把条目集合折叠为“哪些日期算完成”
// 同一天存在多条 attempt 时，任意一条达标即视为完成
func completedDates(habit *db.Habit, entries []db.HabitEntry) map[string]bool {
	done := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entryCompletesDay(habit, entry) {
			done[entry.EntryDate] = true
		}
	}
	return done
}

// ComputeCurrentStreak 从 today 起逐日向前回溯，计算当前连胜
// 休息日（schedule 不要求打卡的日期）既不中断也不计数；
// 当天没打卡不算中断，昨天的连胜仍然有效
func ComputeCurrentStreak(habit *db.Habit, entries []db.HabitEntry, today string) StreakResult {
	done := completedDates(habit, entries)

	var result StreakResult
	date := today

	for i := 0; i < maxStreakLookback; i++ {
		// 防御：不处理未来日期
		if date > today {
			date = addDays(date, -1)
			continue
		}

		if !ShouldHaveEntry(habit, date) {
			date = addDays(date, -1)
			continue
		}

		if done[date] {
			result.Length++
			result.StartDate = date
			date = addDays(date, -1)
			continue
		}

		if date == today {
			date = addDays(date, -1)
			continue
		}

		break
	}

	return result
}

// UpdateStreaks 重算当前连胜并维护缓存记录
// 连胜>0 时更新（或创建）唯一的活跃记录，并判定是否刷新个人纪录；
// 连胜归零时停用活跃记录并写入 EndDate。
// 习惯没有任何条目时直接返回，属于“未设置”状态而非错误。
func (s *StreakService) UpdateStreaks(habit *db.Habit, entries []db.HabitEntry, today string) error {
	if len(entries) == 0 {
		return nil
	}

	result := ComputeCurrentStreak(habit, entries, today)

	active, err := s.ActiveStreak(habit.ID)
	if err != nil {
		return err
	}

	if result.Length == 0 {
		if active == nil {
			return nil
		}
		active.IsActive = false
		active.EndDate = today
		if err := s.db.Save(active).Error; err != nil {
			return fmt.Errorf("deactivate streak: %w", err)
		}
		return nil
	}

	// 个人纪录只和历史（非活跃）记录比较，活跃记录本身会被本次更新覆盖，
	// 否则对同一份数据连算两次会让标记来回翻转
	longest, err := s.longestRecorded(habit.ID, activeID(active))
	if err != nil {
		return err
	}
	isRecord := result.Length > longest

	if active == nil {
		record := db.Streak{
			HabitID:          habit.ID,
			StartDate:        result.StartDate,
			Length:           result.Length,
			IsActive:         true,
			IsPersonalRecord: isRecord,
		}
		if err := s.db.Create(&record).Error; err != nil {
			return fmt.Errorf("create streak: %w", err)
		}
		return nil
	}

	active.StartDate = result.StartDate
	active.Length = result.Length
	active.IsPersonalRecord = isRecord
	if err := s.db.Save(active).Error; err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return nil
}

// ActiveStreak 返回习惯当前的活跃连胜记录，不存在时返回 nil
func (s *StreakService) ActiveStreak(habitID uint) (*db.Streak, error) {
	var streak db.Streak
	err := s.db.Where("habit_id = ? AND is_active = ?", habitID, true).First(&streak).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active streak: %w", err)
	}
	return &streak, nil
}

// ListStreaks 返回习惯的全部连胜记录，按开始日期排序
func (s *StreakService) ListStreaks(habitID uint) ([]db.Streak, error) {
	var streaks []db.Streak
	if err := s.db.Where("habit_id = ?", habitID).Order("start_date ASC").Find(&streaks).Error; err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	return streaks, nil
}

// longestRecorded 返回除 excludeID 之外记录过的最长连胜，缺省为 0
func (s *StreakService) longestRecorded(habitID uint, excludeID uint) (int, error) {
	var longest int
	query := s.db.Model(&db.Streak{}).Where("habit_id = ?", habitID)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Select("COALESCE(MAX(length), 0)").Scan(&longest).Error; err != nil {
		return 0, fmt.Errorf("query longest streak: %w", err)
	}
	return longest, nil
}

func activeID(streak *db.Streak) uint {
	if streak == nil {
		return 0
	}
	return streak.ID
}
