package lock

import "sync"

// HabitLock 按习惯 ID 串行化写操作
// “写条目 → 重算连胜”必须作为一个不可分割的逻辑单元执行，
// HTTP 层是并发的，这里用每个习惯一把互斥锁来保证串行
// 习惯之间完全独立，互不等待
type HabitLock struct {
	locks sync.Map // map[uint]*sync.Mutex
}

// NewHabitLock 构造 HabitLock
func NewHabitLock() *HabitLock {
	return &HabitLock{}
}

func (l *HabitLock) get(habitID uint) *sync.Mutex {
	if v, ok := l.locks.Load(habitID); ok {
		return v.(*sync.Mutex)
	}

	mu := &sync.Mutex{}
	actual, _ := l.locks.LoadOrStore(habitID, mu)
	return actual.(*sync.Mutex)
}

// Lock 获取指定习惯的锁
func (l *HabitLock) Lock(habitID uint) {
	l.get(habitID).Lock()
}

// Unlock 释放指定习惯的锁
func (l *HabitLock) Unlock(habitID uint) {
	l.get(habitID).Unlock()
}

// WithLock 在持有习惯锁的情况下执行 fn
func (l *HabitLock) WithLock(habitID uint, fn func() error) error {
	l.Lock(habitID)
	defer l.Unlock(habitID)
	return fn()
}
