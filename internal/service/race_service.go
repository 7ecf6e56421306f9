package service

import (
	"math"
	"sort"

	"github.com/habitrace/internal/db"
	"gorm.io/gorm"
)

const (
	// raceFieldSize 排行榜展示的最大名次数
	raceFieldSize = 10
	// bestQuota/recentQuota 量化习惯的取样配比：75% 取最好成绩，25% 取最近成绩
	bestQuota   = raceFieldSize * 3 / 4
	recentQuota = raceFieldSize - bestQuota

	// 趋势预测的数据门槛与预测上限
	forecastMinEntries     = 7
	forecastWindowDays     = 30
	forecastMaxHorizonDays = 180
)

// RaceService 构建“和自己的历史成绩赛跑”的排行数据
// 排行是纯派生数据，不落库，每次读取时根据条目历史重建

type RaceService struct {
	db      *gorm.DB
	habits  *HabitService
	entries *EntryService
	streaks *StreakService
}

// RacePosition 排行榜中的一个名次
type RacePosition struct {
	Value            float64 `json:"value"`
	Date             string  `json:"date"`
	Position         int     `json:"position"`
	IsPersonalRecord bool    `json:"is_personal_record"`
	IsCurrent        bool    `json:"is_current"`
}

// RaceTarget 下一个要追赶的名次
type RaceTarget struct {
	Value         float64 `json:"value"`
	Position      int     `json:"position"`
	EstimatedDate string  `json:"estimated_date,omitempty"`
}

// RaceRecord 当前成绩之外的最好历史成绩
type RaceRecord struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// RaceData 单个习惯的排行快照
type RaceData struct {
	Positions       []RacePosition `json:"positions"`
	CurrentPosition int            `json:"current_position"`
	TotalPositions  int            `json:"total_positions"`
	NextTarget      *RaceTarget    `json:"next_target,omitempty"`
	PreviousRecord  *RaceRecord    `json:"previous_record,omitempty"`
}

// NewRaceService 构造 RaceService
func NewRaceService(gdb *gorm.DB, habits *HabitService, entries *EntryService, streaks *StreakService) *RaceService {
	return &RaceService{db: gdb, habits: habits, entries: entries, streaks: streaks}
}

// CalculateRaceData 计算习惯的排行快照
// 习惯不存在返回 ErrHabitNotFound；没有任何条目返回空排行，不是错误
func (s *RaceService) CalculateRaceData(publicID string, today string) (*RaceData, error) {
	habit, err := s.habits.Get(publicID)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.ListForHabit(habit.ID, EntryFilter{})
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return &RaceData{Positions: []RacePosition{}}, nil
	}

	if habit.Type == db.HabitTypeBoolean {
		return s.streakRace(habit, entries, today)
	}
	return s.valueRace(habit, entries, today)
}

// streakRace 布尔习惯按历史达到过的连胜长度赛跑
func (s *RaceService) streakRace(habit *db.Habit, entries []db.HabitEntry, today string) (*RaceData, error) {
	current := 0
	if active, err := s.streaks.ActiveStreak(habit.ID); err != nil {
		return nil, err
	} else if active != nil {
		current = active.Length
	}

	lengths, reachedOn := streakLengthsReached(habit, entries)
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))

	total := len(lengths)
	display := lengths
	if len(display) > raceFieldSize {
		display = display[:raceFieldSize]
	}

	positions := make([]RacePosition, 0, len(display))
	for i, length := range display {
		positions = append(positions, RacePosition{
			Value:            float64(length),
			Date:             reachedOn[length],
			Position:         i + 1,
			IsPersonalRecord: i == 0,
			IsCurrent:        length == current,
		})
	}

	race := &RaceData{
		Positions:      positions,
		TotalPositions: total,
	}
	race.CurrentPosition = resolveCurrentPosition(positions, float64(current), db.DirectionMaximize, total)
	s.attachNextTarget(race, entries, float64(current), db.DirectionMaximize, today)

	if record := s.bestFinishedStreak(habit.ID); record != nil {
		race.PreviousRecord = record
	}

	return race, nil
}

// streakLengthsReached 扫描条目历史，收集达到过的所有连胜长度（去重）
// 计数器在达标日续上前一天时递增，出现空档或未达标时归零重计，
// 途中经过的每个长度都进入集合，而不只是峰值
func streakLengthsReached(habit *db.Habit, entries []db.HabitEntry) ([]int, map[int]string) {
	done := completedDates(habit, entries)

	dates := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.EntryDate]; ok {
			continue
		}
		seen[entry.EntryDate] = struct{}{}
		dates = append(dates, entry.EntryDate)
	}
	sort.Strings(dates)

	reached := make(map[int]struct{})
	reachedOn := make(map[int]string)
	counter := 0
	prevCounted := ""

	for _, date := range dates {
		if !done[date] {
			counter = 0
			prevCounted = ""
			continue
		}

		if prevCounted != "" && addDays(prevCounted, 1) == date {
			counter++
		} else {
			counter = 1
		}
		prevCounted = date

		reached[counter] = struct{}{}
		reachedOn[counter] = date
	}

	lengths := make([]int, 0, len(reached))
	for length := range reached {
		lengths = append(lengths, length)
	}
	return lengths, reachedOn
}

// valueRace 量化习惯按数值赛跑，展示集取样为 75% 最好 + 25% 最近
func (s *RaceService) valueRace(habit *db.Habit, entries []db.HabitEntry, today string) (*RaceData, error) {
	current := mostRecentEntry(entries)

	full := make([]db.HabitEntry, len(entries))
	copy(full, entries)
	sortByValue(full, habit.Direction)

	// 个人纪录在截断前由完整排序确定，取样不会弄丢它
	bestID := full[0].ID
	total := len(full)

	picked := make(map[uint]struct{}, raceFieldSize)
	display := make([]db.HabitEntry, 0, raceFieldSize)
	for i := 0; i < len(full) && i < bestQuota; i++ {
		picked[full[i].ID] = struct{}{}
		display = append(display, full[i])
	}

	recent := make([]db.HabitEntry, len(entries))
	copy(recent, entries)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].CreatedAt.Equal(recent[j].CreatedAt) {
			return recent[i].CreatedAt.After(recent[j].CreatedAt)
		}
		return recent[i].ID > recent[j].ID
	})
	added := 0
	for _, entry := range recent {
		if added >= recentQuota {
			break
		}
		if _, ok := picked[entry.ID]; ok {
			continue
		}
		picked[entry.ID] = struct{}{}
		display = append(display, entry)
		added++
	}

	// 展示集重新按数值排序后赋予紧密的名次；
	// 名次相对于取样子集而非全量历史，total_positions 提供全量规模
	sortByValue(display, habit.Direction)

	positions := make([]RacePosition, 0, len(display))
	for i, entry := range display {
		positions = append(positions, RacePosition{
			Value:            entry.Value,
			Date:             entry.EntryDate,
			Position:         i + 1,
			IsPersonalRecord: entry.ID == bestID,
			IsCurrent:        current != nil && entry.ID == current.ID,
		})
	}

	race := &RaceData{
		Positions:      positions,
		TotalPositions: total,
	}

	currentValue := 0.0
	if current != nil {
		currentValue = current.Value
	}
	race.CurrentPosition = resolveCurrentPosition(positions, currentValue, habit.Direction, total)
	s.attachNextTarget(race, entries, currentValue, habit.Direction, today)

	if current != nil {
		for _, entry := range full {
			if entry.ID != current.ID {
				race.PreviousRecord = &RaceRecord{Value: entry.Value, Date: entry.EntryDate}
				break
			}
		}
	}

	return race, nil
}

// sortByValue 按目标方向排序：maximize 降序，minimize 升序；同值按日期先后
func sortByValue(entries []db.HabitEntry, direction string) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			if direction == db.DirectionMinimize {
				return entries[i].Value < entries[j].Value
			}
			return entries[i].Value > entries[j].Value
		}
		return entries[i].EntryDate < entries[j].EntryDate
	})
}

// resolveCurrentPosition 在展示集中定位当前成绩的名次
// 有 is_current 命中时直接取其名次；否则找到第一个当前值可以
// 打平或超过的名次；都不满足则排在取样之外的末位。
// 最终限制在 [1, total] 之内，total 为 0 时名次为 0。
func resolveCurrentPosition(positions []RacePosition, currentValue float64, direction string, total int) int {
	if total == 0 {
		return 0
	}

	position := 0
	for _, p := range positions {
		if p.IsCurrent {
			position = p.Position
			break
		}
	}

	if position == 0 {
		for _, p := range positions {
			if beatsOrTies(currentValue, p.Value, direction) {
				position = p.Position
				break
			}
		}
	}

	if position == 0 {
		position = len(positions) + 1
	}

	if position > total {
		position = total
	}
	if position < 1 {
		position = 1
	}
	return position
}

func beatsOrTies(current, candidate float64, direction string) bool {
	if direction == db.DirectionMinimize {
		return current <= candidate
	}
	return current >= candidate
}

// attachNextTarget 填充下一个追赶目标及其预计达成日期
// 已经领跑（名次 1）时没有目标
func (s *RaceService) attachNextTarget(race *RaceData, entries []db.HabitEntry, currentValue float64, direction string, today string) {
	if race.CurrentPosition <= 1 {
		return
	}

	for _, p := range race.Positions {
		if p.Position == race.CurrentPosition-1 {
			target := &RaceTarget{Value: p.Value, Position: p.Position}
			target.EstimatedDate = estimateReachDate(entries, currentValue, p.Value, direction, today)
			race.NextTarget = target
			return
		}
	}
}

// estimateReachDate 用最近 30 天的线性回归预测达成目标的日期
// 数据不足、趋势不利或预测超出 180 天时返回空串（没有预测不是错误）
func estimateReachDate(entries []db.HabitEntry, currentValue, targetValue float64, direction string, today string) string {
	if len(entries) < forecastMinEntries {
		return ""
	}

	windowStart := addDays(today, -(forecastWindowDays - 1))
	values := make([]float64, 0, len(entries))
	for _, entry := range entries {
		if entry.EntryDate >= windowStart && entry.EntryDate <= today {
			values = append(values, entry.Value)
		}
	}
	if len(values) < forecastMinEntries {
		return ""
	}

	slope := olsSlope(values)
	if direction == db.DirectionMinimize {
		if slope >= 0 {
			return ""
		}
	} else if slope <= 0 {
		return ""
	}

	days := int(math.Ceil(math.Abs(targetValue-currentValue) / math.Abs(slope)))
	if days <= 0 || days > forecastMaxHorizonDays {
		return ""
	}

	return addDays(today, days)
}

// olsSlope 对 value ~ index 做最小二乘，返回斜率
func olsSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// bestFinishedStreak 返回已结束连胜中的最长一段，用作布尔习惯的历史纪录
func (s *RaceService) bestFinishedStreak(habitID uint) *RaceRecord {
	var streak db.Streak
	err := s.db.Where("habit_id = ? AND is_active = ?", habitID, false).
		Order("length DESC").
		First(&streak).Error
	if err != nil {
		return nil
	}
	return &RaceRecord{Value: float64(streak.Length), Date: streak.EndDate}
}
