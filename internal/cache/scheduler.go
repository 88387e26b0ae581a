package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"seckill/pkg/logger"
	"seckill/pkg/metrics"
)

var (
	// ErrQueueFull 重建队列已满，任务被拒绝。
	ErrQueueFull = errors.New("cache: rebuild queue full")
	// ErrSchedulerClosed 线程池已关闭。
	ErrSchedulerClosed = errors.New("cache: rebuild scheduler closed")
)

// Task 一个缓存重建任务。
type Task func(ctx context.Context) error

// Scheduler 固定大小的缓存重建线程池。Submit 从不阻塞读请求，
// 队列满时直接拒绝。已开始的任务不会被取消。
type Scheduler struct {
	tasks chan Task
	wg    sync.WaitGroup
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewScheduler 启动 workers 个 worker，队列长度为 queueSize。
func NewScheduler(workers, queueSize int) *Scheduler {
	if workers <= 0 {
		workers = 10
	}
	if queueSize < 0 {
		queueSize = 0
	}
	s := &Scheduler{
		tasks: make(chan Task, queueSize),
		log:   logger.WithModule("cache-rebuild"),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Submit 非阻塞提交任务。
func (s *Scheduler) Submit(task Task) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	select {
	case s.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close 停止接收新任务，等待队列中的任务执行完。
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		s.run(task)
	}
}

func (s *Scheduler) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CacheRebuilds.WithLabelValues("failed").Inc()
			s.log.Error("rebuild task panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	if err := task(context.Background()); err != nil {
		metrics.CacheRebuilds.WithLabelValues("failed").Inc()
		s.log.Warn("rebuild task failed", zap.Error(err))
		return
	}
	metrics.CacheRebuilds.WithLabelValues("succeeded").Inc()
}
