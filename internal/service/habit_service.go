package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/habitrace/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrHabitInvalidInput 当习惯配置不合法时返回
	ErrHabitInvalidInput = errors.New("invalid habit configuration")
)

// HabitService 负责 Habit 数据的增删改查
// Type 支持 boolean/quantifiable，Direction 支持 maximize/minimize
// Frequency 支持 daily/weekly/specific_days，specific_days 需要给出星期 token 集合

type HabitService struct {
	db *gorm.DB
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	IncludeArchived bool
	Type            string
	Search          string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name         string
	Description  string
	Type         string
	Direction    string
	GoalValue    float64
	Unit         string
	MetricType   string
	Frequency    string
	SpecificDays []string
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb}
}

// List 返回习惯集合，支持基本筛选，默认不含已归档习惯
func (s *HabitService) List(filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{})

	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// Get 根据对外的 PublicID 获取习惯
func (s *HabitService) Get(publicID string) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.Where("public_id = ?", strings.TrimSpace(publicID)).First(&habit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯，PublicID 由服务端生成
func (s *HabitService) Create(input HabitInput) (*db.Habit, error) {
	normalized, err := normalizeHabitInput(input)
	if err != nil {
		return nil, err
	}

	habit := db.Habit{
		PublicID:     uuid.New().String(),
		Name:         strings.TrimSpace(input.Name),
		Description:  strings.TrimSpace(input.Description),
		Type:         normalized.Type,
		Direction:    normalized.Direction,
		GoalValue:    input.GoalValue,
		Unit:         strings.TrimSpace(input.Unit),
		MetricType:   strings.TrimSpace(input.MetricType),
		Frequency:    normalized.Frequency,
		SpecificDays: strings.Join(normalized.SpecificDays, ","),
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯配置
func (s *HabitService) Update(publicID string, input HabitInput) (*db.Habit, error) {
	normalized, err := normalizeHabitInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(publicID)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.Type = normalized.Type
	existing.Direction = normalized.Direction
	existing.GoalValue = input.GoalValue
	existing.Unit = strings.TrimSpace(input.Unit)
	existing.MetricType = strings.TrimSpace(input.MetricType)
	existing.Frequency = normalized.Frequency
	existing.SpecificDays = strings.Join(normalized.SpecificDays, ",")

	if err := s.db.Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return existing, nil
}

// SetArchived 切换归档标记（软删除）
func (s *HabitService) SetArchived(publicID string, archived bool) (*db.Habit, error) {
	habit, err := s.Get(publicID)
	if err != nil {
		return nil, err
	}

	habit.Archived = archived
	if err := s.db.Save(habit).Error; err != nil {
		return nil, fmt.Errorf("archive habit: %w", err)
	}
	return habit, nil
}

// Delete 硬删除习惯，并级联清理其全部条目与连胜记录
func (s *HabitService) Delete(publicID string) error {
	habit, err := s.Get(publicID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("habit_id = ?", habit.ID).Delete(&db.HabitEntry{}).Error; err != nil {
			return fmt.Errorf("delete habit entries: %w", err)
		}
		if err := tx.Unscoped().Where("habit_id = ?", habit.ID).Delete(&db.Streak{}).Error; err != nil {
			return fmt.Errorf("delete habit streaks: %w", err)
		}
		if err := tx.Unscoped().Delete(&db.Habit{}, habit.ID).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
}

// normalizedHabit 是校验之后的标准化字段
type normalizedHabit struct {
	Type         string
	Direction    string
	Frequency    string
	SpecificDays []string
}

func normalizeHabitInput(input HabitInput) (normalizedHabit, error) {
	var out normalizedHabit

	if strings.TrimSpace(input.Name) == "" {
		return out, fmt.Errorf("%w: name is required", ErrHabitInvalidInput)
	}

	out.Type = strings.TrimSpace(strings.ToLower(input.Type))
	if out.Type != db.HabitTypeBoolean && out.Type != db.HabitTypeQuantifiable {
		return out, fmt.Errorf("%w: unsupported type %s", ErrHabitInvalidInput, input.Type)
	}

	out.Direction = strings.TrimSpace(strings.ToLower(input.Direction))
	switch out.Type {
	case db.HabitTypeBoolean:
		// 布尔习惯恒定为“越多越好”
		out.Direction = db.DirectionMaximize
	case db.HabitTypeQuantifiable:
		if out.Direction == "" {
			out.Direction = db.DirectionMaximize
		}
		if out.Direction != db.DirectionMaximize && out.Direction != db.DirectionMinimize {
			return out, fmt.Errorf("%w: unsupported direction %s", ErrHabitInvalidInput, input.Direction)
		}
	}

	out.Frequency = strings.TrimSpace(strings.ToLower(input.Frequency))
	if out.Frequency == "" {
		out.Frequency = db.FrequencyDaily
	}

	switch out.Frequency {
	case db.FrequencyDaily, db.FrequencyWeekly:
	case db.FrequencySpecificDays:
		days, err := normalizeWeekdayTokens(input.SpecificDays)
		if err != nil {
			return out, err
		}
		out.SpecificDays = days
	default:
		return out, fmt.Errorf("%w: unsupported frequency %s", ErrHabitInvalidInput, input.Frequency)
	}

	return out, nil
}

func normalizeWeekdayTokens(tokens []string) ([]string, error) {
	valid := make(map[string]struct{}, len(weekdayTokens))
	for _, token := range weekdayTokens {
		valid[token] = struct{}{}
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, len(tokens))
	for _, raw := range tokens {
		token := strings.TrimSpace(strings.ToLower(raw))
		if token == "" {
			continue
		}
		if _, ok := valid[token]; !ok {
			return nil, fmt.Errorf("%w: unknown weekday %s", ErrHabitInvalidInput, raw)
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: specific_days requires at least one weekday", ErrHabitInvalidInput)
	}

	return out, nil
}
