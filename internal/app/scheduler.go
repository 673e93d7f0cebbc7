package app

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	taskPending int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// TaskScheduler runs scheduled callbacks on exactly one worker goroutine, so
// phase transitions never execute concurrently with each other. A long
// callback delays every task queued behind it.
type TaskScheduler struct {
	logger *slog.Logger
	now    func() time.Time
	queue  chan *scheduledTask
	done   chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type scheduledTask struct {
	fn    func()
	at    time.Time
	state atomic.Int32

	mu    sync.Mutex
	timer *time.Timer
}

func NewTaskScheduler(logger *slog.Logger) *TaskScheduler {
	return newTaskSchedulerWithClock(logger, time.Now)
}

func newTaskSchedulerWithClock(logger *slog.Logger, now func() time.Time) *TaskScheduler {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &TaskScheduler{
		logger: logger,
		now:    now,
		queue:  make(chan *scheduledTask, 64),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Schedule arms task to run at the given instant. Instants in the past fire immediately.
func (s *TaskScheduler) Schedule(task func(), at time.Time) TaskHandle {
	t := &scheduledTask{fn: task, at: at}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() { s.enqueue(t) })
	t.mu.Unlock()
	return t
}

// Stop terminates the worker after the running task, if any, returns.
// Tasks that have not started yet are dropped.
func (s *TaskScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *TaskScheduler) enqueue(t *scheduledTask) {
	select {
	case s.queue <- t:
	case <-s.done:
	}
}

func (s *TaskScheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.queue:
			s.execute(t)
		case <-s.done:
			return
		}
	}
}

func (s *TaskScheduler) execute(t *scheduledTask) {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return
	}
	defer t.state.Store(taskDone)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "panic", r, "scheduled_at", t.at)
		}
	}()
	t.fn()
}

// Cancel prevents the task from running. It reports false once the task has started.
func (t *scheduledTask) Cancel() bool {
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	return true
}
