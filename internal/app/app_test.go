package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) component(name string, startErr error) Hooks {
	return Hooks{
		OnStart: func(context.Context) error {
			r.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			r.add("stop " + name)
			return nil
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	a := New(testLogger())
	a.Add("a", rec.component("a", nil))
	a.Add("b", rec.component("b", nil))
	a.Add("c", rec.component("c", nil))

	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	a.Stop()
	a.Stop()

	want := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	boom := errors.New("boom")
	a := New(testLogger())
	a.Add("a", rec.component("a", nil))
	a.Add("b", rec.component("b", boom))
	a.Add("c", rec.component("c", nil))

	err := a.Start(t.Context())
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want %v", err, boom)
	}

	want := []string{"start a", "start b", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_RunStopsOnContextDone(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	a := New(testLogger())
	a.Add("a", rec.component("a", nil))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for len(rec.list()) == 0 {
		select {
		case <-deadline:
			t.Fatal("component never started")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}

	want := []string{"start a", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestHooks_NilIsNoop(t *testing.T) {
	t.Parallel()

	var h Hooks
	if err := h.Start(t.Context()); err != nil {
		t.Errorf("Start() error: %v", err)
	}
	if err := h.Stop(t.Context()); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}
