package saga_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"claimsaga/internal/saga"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// blockWorker occupies the worker until the returned release func is called.
func blockWorker(t *testing.T, s *saga.SideChannel) func() {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	if !s.Fire("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}) {
		t.Fatalf("blocking task rejected")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never started")
	}
	var once sync.Once
	return func() { once.Do(func() { close(release) }) }
}

func TestSideChannelRunsInOrder(t *testing.T) {
	s := saga.NewSideChannel(8, time.Second, log.New(&syncBuffer{}, "", 0))
	defer s.Close()
	var mu sync.Mutex
	var got []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Fire(name, func(context.Context) error {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		})
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, "") != "abc" {
		t.Fatalf("order: %v", got)
	}
}

func TestSideChannelDropsWhenFull(t *testing.T) {
	logs := &syncBuffer{}
	s := saga.NewSideChannel(1, time.Second, log.New(logs, "", 0))
	defer s.Close()
	release := blockWorker(t, s)
	defer release()

	if !s.Fire("queued", func(context.Context) error { return nil }) {
		t.Fatalf("expected buffered call to be accepted")
	}
	start := time.Now()
	if s.Fire("overflow", func(context.Context) error { return nil }) {
		t.Fatalf("expected overflow to be dropped")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("Fire blocked on a full queue")
	}
	if !strings.Contains(logs.String(), "queue full, dropping overflow") {
		t.Fatalf("drop not logged: %q", logs.String())
	}
}

func TestSideChannelFireAfterClose(t *testing.T) {
	logs := &syncBuffer{}
	s := saga.NewSideChannel(4, time.Second, log.New(logs, "", 0))
	s.Close()
	ran := false
	if s.Fire("late", func(context.Context) error { ran = true; return nil }) {
		t.Fatalf("expected call after close to be dropped")
	}
	if ran {
		t.Fatalf("dropped call ran")
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	s.Close()
	if !strings.Contains(logs.String(), "closed, dropping late") {
		t.Fatalf("drop not logged: %q", logs.String())
	}
}

func TestSideChannelFlushHonorsContext(t *testing.T) {
	s := saga.NewSideChannel(1, time.Second, log.New(&syncBuffer{}, "", 0))
	defer s.Close()
	release := blockWorker(t, s)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSideChannelRecoversPanicsAndErrors(t *testing.T) {
	logs := &syncBuffer{}
	s := saga.NewSideChannel(4, time.Second, log.New(logs, "", 0))
	defer s.Close()
	ran := make(chan struct{})
	s.Fire("boom", func(context.Context) error { panic("kaboom") })
	s.Fire("fails", func(context.Context) error { return errors.New("down") })
	s.Fire("after", func(context.Context) error { close(ran); return nil })
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatalf("worker stopped after a panic")
	}
	out := logs.String()
	if !strings.Contains(out, "boom panicked: kaboom") || !strings.Contains(out, "fails failed: down") {
		t.Fatalf("log: %q", out)
	}
}

func TestSideChannelCallTimeout(t *testing.T) {
	s := saga.NewSideChannel(4, 20*time.Millisecond, log.New(&syncBuffer{}, "", 0))
	defer s.Close()
	var got error
	s.Fire("slow", func(ctx context.Context) error {
		<-ctx.Done()
		got = ctx.Err()
		return got
	})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("expected call deadline, got %v", got)
	}
}

func TestSideChannelFireDoesNotBlockDuringShutdown(t *testing.T) {
	s := saga.NewSideChannel(1, time.Second, log.New(&syncBuffer{}, "", 0))
	release := blockWorker(t, s)
	defer release()
	s.Fire("queued", func(context.Context) error { return nil })

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background()) }()
	closed := make(chan struct{})
	go func() { s.Close(); close(closed) }()

	select {
	case err := <-flushed:
		if err != nil {
			t.Fatalf("flush: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("flush did not return once the channel closed")
	}
	fired := make(chan bool, 1)
	go func() { fired <- s.Fire("late", func(context.Context) error { return nil }) }()
	select {
	case ok := <-fired:
		if ok {
			t.Fatalf("expected late call to be dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("Fire blocked while Close was draining")
	}
	release()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not finish after the worker was released")
	}
}
