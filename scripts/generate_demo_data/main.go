package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/habitrace/internal/config"
	"github.com/habitrace/internal/db"
	"github.com/habitrace/internal/lock"
	"github.com/habitrace/internal/service"
)

// 演示数据生成器：一个带空档的布尔打卡习惯和一个稳步提升的量化习惯
func main() {
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	habits := service.NewHabitService(db.DB)
	streaks := service.NewStreakService(db.DB)
	entries := service.NewEntryService(db.DB, streaks, lock.NewHabitLock())
	today := service.Today()

	fmt.Println("开始生成演示数据...")

	meditation, err := habits.Create(service.HabitInput{
		Name:        "冥想",
		Description: "每天早上 10 分钟",
		Type:        db.HabitTypeBoolean,
		Frequency:   db.FrequencyDaily,
	})
	if err != nil {
		log.Fatal("创建习惯失败:", err)
	}

	// 过去 60 天打卡，随机留几个空档制造多段连胜
	base := time.Now().AddDate(0, 0, -59)
	for i := 0; i < 60; i++ {
		if rand.Intn(10) == 0 {
			continue
		}
		date := base.AddDate(0, 0, i).Format("2006-01-02")
		if _, err := entries.CheckIn(meditation, service.EntryInput{Date: date, Value: 1}, today); err != nil {
			log.Fatal("写入打卡失败:", err)
		}
	}

	running, err := habits.Create(service.HabitInput{
		Name:       "跑步距离",
		Type:       db.HabitTypeQuantifiable,
		Direction:  db.DirectionMaximize,
		Unit:       "km",
		GoalValue:  10,
		MetricType: "distance",
	})
	if err != nil {
		log.Fatal("创建习惯失败:", err)
	}

	// 最近 30 天缓慢上升的跑量，带一点噪声
	base = time.Now().AddDate(0, 0, -29)
	for i := 0; i < 30; i++ {
		date := base.AddDate(0, 0, i).Format("2006-01-02")
		value := 3 + float64(i)*0.15 + rand.Float64()
		if _, err := entries.CheckIn(running, service.EntryInput{Date: date, Value: value}, today); err != nil {
			log.Fatal("写入打卡失败:", err)
		}
	}

	fmt.Println("演示数据生成完成")
}
