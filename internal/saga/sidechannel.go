package saga

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultSideQueue   = 256
	defaultSideTimeout = 10 * time.Second
)

type sideTask struct {
	name string
	fn   func(context.Context) error
	done chan struct{}
}

// SideChannel runs fire-and-forget calls (audit, watch registration) on a
// background worker in submission order. Fire never blocks: a full or closed
// queue drops the call. Errors are logged and discarded.
type SideChannel struct {
	queue   chan sideTask
	timeout time.Duration
	logger  *log.Logger

	// mu guards closed; it is never held across a blocking send.
	mu       sync.RWMutex
	closed   bool
	stop     chan struct{}
	finished chan struct{}
}

func NewSideChannel(size int, timeout time.Duration, logger *log.Logger) *SideChannel {
	if size <= 0 {
		size = defaultSideQueue
	}
	if timeout <= 0 {
		timeout = defaultSideTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &SideChannel{
		queue:    make(chan sideTask, size),
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *SideChannel) run() {
	defer close(s.finished)
	for {
		select {
		case task := <-s.queue:
			s.handle(task)
		case <-s.stop:
			for {
				select {
				case task := <-s.queue:
					s.handle(task)
				default:
					return
				}
			}
		}
	}
}

func (s *SideChannel) handle(task sideTask) {
	if task.fn != nil {
		s.execute(task)
	}
	if task.done != nil {
		close(task.done)
	}
}

func (s *SideChannel) execute(task sideTask) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("side-channel: %s panicked: %v", task.name, r)
		}
	}()
	if err := task.fn(ctx); err != nil {
		s.logger.Printf("side-channel: %s failed: %v", task.name, err)
	}
}

// Fire enqueues fn and returns immediately. It reports whether the call was
// accepted.
func (s *SideChannel) Fire(name string, fn func(context.Context) error) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Printf("side-channel: closed, dropping %s", name)
		return false
	}
	select {
	case s.queue <- sideTask{name: name, fn: fn}:
		return true
	default:
		s.logger.Printf("side-channel: queue full, dropping %s", name)
		return false
	}
}

// Flush blocks until every call fired before it has run or ctx ends.
func (s *SideChannel) Flush(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.queue <- sideTask{name: "flush", done: done}:
	case <-s.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls and waits for queued ones to finish.
func (s *SideChannel) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.finished
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	<-s.finished
}
