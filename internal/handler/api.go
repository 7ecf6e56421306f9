package handler

import (
	"github.com/habitrace/internal/lock"
	"github.com/habitrace/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db      *gorm.DB
	habits  *service.HabitService
	entries *service.EntryService
	streaks *service.StreakService
	races   *service.RaceService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB) *API {
	habits := service.NewHabitService(gdb)
	streaks := service.NewStreakService(gdb)
	entries := service.NewEntryService(gdb, streaks, lock.NewHabitLock())
	races := service.NewRaceService(gdb, habits, entries, streaks)

	return &API{
		db:      gdb,
		habits:  habits,
		entries: entries,
		streaks: streaks,
		races:   races,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}
