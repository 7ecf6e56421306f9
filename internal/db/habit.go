package db

import (
	"gorm.io/gorm"
)

// 习惯类型、目标方向与频率的取值常量
const (
	HabitTypeBoolean      = "boolean"
	HabitTypeQuantifiable = "quantifiable"

	DirectionMaximize = "maximize"
	DirectionMinimize = "minimize"

	FrequencyDaily        = "daily"
	FrequencyWeekly       = "weekly"
	FrequencySpecificDays = "specific_days"
)

// Habit 定义了习惯模型
// Type 区分布尔打卡与量化指标，Direction 决定数值越大还是越小算更好
// Frequency=specific_days 时 SpecificDays 保存逗号分隔的星期 token（mon..sun）
// Archived 为软删除标记，硬删除会级联清理条目与连胜记录
type Habit struct {
	gorm.Model
	PublicID     string `gorm:"uniqueIndex;size:36"`
	Name         string
	Description  string
	Type         string
	Direction    string
	GoalValue    float64
	Unit         string
	MetricType   string
	Frequency    string
	SpecificDays string
	Archived     bool `gorm:"index"`
}

// HabitEntry 记录某个习惯在某一天的一次观测
// 非 attempt 条目以 (habit_id, entry_date) 为自然键，每天至多一条，唯一性由服务层保证
// attempt 条目允许同一天多条，用于可重复的计时尝试，因此表上不能建唯一索引
// 日期统一为 YYYY-MM-DD 字符串，字符串序即时间序，全部排序与比较都依赖这一点
type HabitEntry struct {
	gorm.Model
	HabitID   uint   `gorm:"index;index:idx_entry_habit_date"`
	Habit     Habit  `gorm:"constraint:OnDelete:CASCADE"`
	EntryDate string `gorm:"size:10;index:idx_entry_habit_date"`
	Value     float64
	IsAttempt bool
}

// Streak 缓存一段连续完成的统计结果
// 每个习惯同一时刻至多存在一条 is_active=true 的记录
// EndDate 仅在连胜中断、记录停用时写入
type Streak struct {
	gorm.Model
	HabitID          uint   `gorm:"index"`
	Habit            Habit  `gorm:"constraint:OnDelete:CASCADE"`
	StartDate        string `gorm:"size:10"`
	EndDate          string `gorm:"size:10"`
	Length           int
	IsActive         bool `gorm:"index"`
	IsPersonalRecord bool
}
