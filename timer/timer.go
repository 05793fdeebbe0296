// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type TimerTask struct {
	Id       int64
	Key      string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager 是一个按 key 覆盖的定时器：同一个 key 再次 Arm 会替换之前未触发的任务
type TimerManager struct {
	queue  TimerQueue
	keys   map[string]*TimerTask
	mutex  sync.Mutex
	nextId int64
	tick   time.Duration
	done   chan struct{}
	once   sync.Once
}

type Option func(*TimerManager)

// WithTick sets the polling resolution, 100ms by default.
func WithTick(d time.Duration) Option {
	return func(m *TimerManager) { m.tick = d }
}

func NewTimerManager(opts ...Option) *TimerManager {
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		keys:   make(map[string]*TimerTask),
		nextId: 1,
		tick:   100 * time.Millisecond,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(manager)
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) push(key string, delay, interval time.Duration, callback func()) *TimerTask {
	task := &TimerTask{
		Id:       m.nextId,
		Key:      key,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++
	heap.Push(&m.queue, task)
	return task
}

func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.push("", delay, interval, callback).Id
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.queue {
		if task.Id == timerId {
			m.remove(task)
			break
		}
	}
}

func (m *TimerManager) remove(task *TimerTask) {
	if task.index >= 0 {
		heap.Remove(&m.queue, task.index)
	}
	if task.Key != "" && m.keys[task.Key] == task {
		delete(m.keys, task.Key)
	}
}

// Arm schedules a one-shot callback under key, replacing any pending one.
func (m *TimerManager) Arm(key string, delay time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if prev, ok := m.keys[key]; ok {
		m.remove(prev)
	}
	task := m.push(key, delay, 0, callback)
	m.keys[key] = task
	return task.Id
}

// Cancel drops the pending callback for key and reports whether one existed.
func (m *TimerManager) Cancel(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.keys[key]
	if ok {
		m.remove(task)
	}
	return ok
}

func (m *TimerManager) Pending(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.keys[key]
	return ok
}

// Stop 停止处理循环，未触发的任务被丢弃
func (m *TimerManager) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var fired []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		fired = append(fired, task)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		} else if task.Key != "" && m.keys[task.Key] == task {
			delete(m.keys, task.Key)
		}
	}
	return fired
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				go task.Callback()
			}
		case <-m.done:
			return
		}
	}
}
