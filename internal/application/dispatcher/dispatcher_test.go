package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

// mockLogger records messages for assertions
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func decided() *event.Event {
	return event.New(event.TypeCaseDecided, "1", event.CaseDecided{}, "")
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Subscribe(event.TypeCaseDecided, "first", func(context.Context, *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(event.TypeCaseDecided, "second", func(context.Context, *event.Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(event.TypeBatchCompleted, "other", func(context.Context, *event.Event) error {
		order = append(order, "other")
		return nil
	})

	if err := d.Dispatch(context.Background(), decided()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handlers ran as %v, want [first second]", order)
	}
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	called := false
	d.Subscribe(event.TypeCaseDecided, "failing", func(context.Context, *event.Event) error { return boom })
	d.Subscribe(event.TypeCaseDecided, "after", func(context.Context, *event.Event) error {
		called = true
		return nil
	})

	err := d.Dispatch(context.Background(), decided())
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want boom", err)
	}
	if called {
		t.Error("handler after the failing one should not run")
	}
	if logger.ErrorCount() != 1 {
		t.Errorf("logged %d errors, want 1", logger.ErrorCount())
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeCaseDecided, "panics", func(context.Context, *event.Event) error { panic("bad handler") })

	if err := d.Dispatch(context.Background(), decided()); err == nil {
		t.Fatal("Dispatch() should report the panic as an error")
	}
}

func TestDispatchAsync_SurvivesCancelledContext(t *testing.T) {
	d := NewDispatcher()
	var sawCancel atomic.Bool
	var runs atomic.Int32
	d.Subscribe(event.TypeCaseDecided, "slow", func(ctx context.Context, _ *event.Event) error {
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.DispatchAsync(ctx, decided())

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", runs.Load())
	}
	if sawCancel.Load() {
		t.Error("async handler saw the caller's cancellation")
	}
}

func TestClose(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if err := d.Dispatch(context.Background(), decided()); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() after Close error = %v, want ErrClosed", err)
	}
}

func TestHandlers(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeCaseDecided, "metrics", func(context.Context, *event.Event) error { return nil })
	d.Subscribe(event.TypeCaseDecided, "lark", func(context.Context, *event.Event) error { return nil })

	names := d.Handlers(event.TypeCaseDecided)
	if len(names) != 2 || names[0] != "metrics" || names[1] != "lark" {
		t.Errorf("Handlers() = %v", names)
	}
	if got := d.Handlers(event.TypeBatchCompleted); len(got) != 0 {
		t.Errorf("Handlers() for unused type = %v", got)
	}
}
