package service

import (
	"errors"
	"testing"
	"time"

	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/lock"
	"gorm.io/gorm"
)

func newEntryFixture(t *testing.T) (*gorm.DB, *HabitService, *EntryService, *StreakService, func()) {
	t.Helper()
	gdb, cleanup := setupServiceTestDB(t)

	habits := NewHabitService(gdb)
	streaks := NewStreakService(gdb)
	entries := NewEntryService(gdb, streaks, lock.NewHabitLock())
	return gdb, habits, entries, streaks, cleanup
}

func TestCheckInNonAttemptUpdatesInPlace(t *testing.T) {
	gdb, habits, entries, _, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "俯卧撑", Type: db.HabitTypeQuantifiable, Direction: db.DirectionMaximize})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: 20}, "2024-05-10"); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	updated, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: 25}, "2024-05-10")
	if err != nil {
		t.Fatalf("second CheckIn returned error: %v", err)
	}

	if updated.Value != 25 {
		t.Fatalf("expected value 25, got %v", updated.Value)
	}

	var count int64
	gdb.Model(&db.HabitEntry{}).Where("habit_id = ?", habit.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 entry for the day, got %d", count)
	}
}

func TestCheckInAttemptsAllowMultiplePerDay(t *testing.T) {
	gdb, habits, entries, _, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "平板支撑", Type: db.HabitTypeQuantifiable, Direction: db.DirectionMaximize, MetricType: "duration"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	for _, value := range []float64{1.5, 2.0, 2.5} {
		if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: value, IsAttempt: true}, "2024-05-10"); err != nil {
			t.Fatalf("attempt CheckIn returned error: %v", err)
		}
	}

	var count int64
	gdb.Model(&db.HabitEntry{}).Where("habit_id = ? AND entry_date = ?", habit.ID, "2024-05-10").Count(&count)
	if count != 3 {
		t.Fatalf("expected 3 attempt entries, got %d", count)
	}
}

func TestCheckInRejectsBadInput(t *testing.T) {
	_, habits, entries, _, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "早睡", Type: db.HabitTypeBoolean})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	if _, err := entries.CheckIn(habit, EntryInput{Date: "not-a-date", Value: 1}, "2024-05-10"); !errors.Is(err, ErrEntryInvalidInput) {
		t.Fatalf("expected ErrEntryInvalidInput for bad date, got %v", err)
	}
	if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: 2}, "2024-05-10"); !errors.Is(err, ErrEntryInvalidInput) {
		t.Fatalf("expected ErrEntryInvalidInput for boolean value 2, got %v", err)
	}
}

func TestCheckInRecomputesStreak(t *testing.T) {
	_, habits, entries, streaks, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "晨跑", Type: db.HabitTypeBoolean})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	for _, date := range []string{"2024-05-08", "2024-05-09", "2024-05-10"} {
		if _, err := entries.CheckIn(habit, EntryInput{Date: date, Value: 1}, "2024-05-10"); err != nil {
			t.Fatalf("CheckIn returned error: %v", err)
		}
	}

	active, err := streaks.ActiveStreak(habit.ID)
	if err != nil {
		t.Fatalf("ActiveStreak returned error: %v", err)
	}
	if active == nil || active.Length != 3 {
		t.Fatalf("expected active streak of 3, got %+v", active)
	}
}

func TestDeleteEntryRecomputesStreak(t *testing.T) {
	_, habits, entries, streaks, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "阅读", Type: db.HabitTypeBoolean})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	first, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-09", Value: 1}, "2024-05-10")
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: 1}, "2024-05-10"); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	if err := entries.Delete(habit, first.ID, "2024-05-10"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	active, err := streaks.ActiveStreak(habit.ID)
	if err != nil {
		t.Fatalf("ActiveStreak returned error: %v", err)
	}
	if active == nil || active.Length != 1 {
		t.Fatalf("expected active streak of 1 after deletion, got %+v", active)
	}

	if err := entries.Delete(habit, 9999, "2024-05-10"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestListForHabitRangeFilter(t *testing.T) {
	_, habits, entries, _, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "喝水", Type: db.HabitTypeQuantifiable})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	for _, date := range []string{"2024-05-01", "2024-05-05", "2024-05-10"} {
		if _, err := entries.CheckIn(habit, EntryInput{Date: date, Value: 2}, "2024-05-10"); err != nil {
			t.Fatalf("CheckIn returned error: %v", err)
		}
	}

	got, err := entries.ListForHabit(habit.ID, EntryFilter{Start: "2024-05-02", End: "2024-05-09"})
	if err != nil {
		t.Fatalf("ListForHabit returned error: %v", err)
	}
	if len(got) != 1 || got[0].EntryDate != "2024-05-05" {
		t.Fatalf("unexpected range result: %+v", got)
	}
}

func TestAttemptValueFromElapsed(t *testing.T) {
	duration := &db.Habit{MetricType: "duration"}
	count := &db.Habit{MetricType: "count"}

	if got := AttemptValueFromElapsed(duration, 330*time.Second); got != 5.5 {
		t.Fatalf("expected 5.5 minutes, got %v", got)
	}
	if got := AttemptValueFromElapsed(count, 42*time.Second); got != 42 {
		t.Fatalf("expected 42 seconds, got %v", got)
	}
}

func TestHeatmapRange(t *testing.T) {
	_, habits, entries, _, cleanup := newEntryFixture(t)
	defer cleanup()

	habit, err := habits.Create(HabitInput{Name: "冥想", Type: db.HabitTypeBoolean})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-09", Value: 1}, "2024-05-10"); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	// 值为 0 的记录不算完成，不进热力图
	if _, err := entries.CheckIn(habit, EntryInput{Date: "2024-05-10", Value: 0}, "2024-05-10"); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	rows, err := entries.HeatmapRange("2024-05-01", "2024-05-31")
	if err != nil {
		t.Fatalf("HeatmapRange returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].EntryDate != "2024-05-09" || rows[0].HabitName != "冥想" {
		t.Fatalf("unexpected heatmap rows: %+v", rows)
	}
}
