package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/repo"
)

// --- Dispatch Tests ---

// fakeRunner считает запуски и позволяет блокировать выполнение.
type fakeRunner struct {
	mu      sync.Mutex
	started map[uuid.UUID]int
	block   chan struct{} // если не nil, Run ждёт закрытия
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(map[uuid.UUID]int)}
}

func (r *fakeRunner) Run(ctx context.Context, flowID uuid.UUID) error {
	r.mu.Lock()
	r.started[flowID]++
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *fakeRunner) runs(flowID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[flowID]
}

type fakeSource struct {
	mu    sync.Mutex
	flows []domain.Flow
}

func (s *fakeSource) ListPending(ctx context.Context, limit int) ([]domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flows) > limit {
		return s.flows[:limit], nil
	}
	return s.flows, nil
}

func TestWorker_DispatchRunsFlow(t *testing.T) {
	runner := newFakeRunner()
	w := New(Config{
		Flows:  &fakeSource{},
		Runner: runner,
	})

	flowID := uuid.New()
	if err := w.dispatch(context.Background(), flowID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	w.wg.Wait()
	if runner.runs(flowID) != 1 {
		t.Errorf("expected 1 run, got %d", runner.runs(flowID))
	}
	if w.ActiveFlowsCount() != 0 {
		t.Errorf("flow should be removed from active set, got %d", w.ActiveFlowsCount())
	}
}

func TestWorker_DispatchDeduplicates(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})

	w := New(Config{
		Flows:  &fakeSource{},
		Runner: runner,
	})

	flowID := uuid.New()
	if err := w.dispatch(context.Background(), flowID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Повторная доставка того же flow, пока он выполняется.
	if err := w.dispatch(context.Background(), flowID); err != ErrFlowAlreadyActive {
		t.Errorf("expected ErrFlowAlreadyActive, got %v", err)
	}
	if w.ActiveFlowsCount() != 1 {
		t.Errorf("expected 1 active flow, got %d", w.ActiveFlowsCount())
	}

	close(runner.block)
	w.wg.Wait()

	if runner.runs(flowID) != 1 {
		t.Errorf("expected 1 run despite double delivery, got %d", runner.runs(flowID))
	}
}

func TestWorker_ConcurrencyLimit(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})

	w := New(Config{
		Flows:       &fakeSource{},
		Runner:      runner,
		Concurrency: 1,
	})

	if err := w.dispatch(context.Background(), uuid.New()); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	// Семафор занят: второй dispatch блокируется до отмены контекста.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.dispatch(ctx, uuid.New())
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded while semaphore is full, got %v", err)
	}
	if w.ActiveFlowsCount() != 1 {
		t.Errorf("rejected flow must leave the active set, got %d", w.ActiveFlowsCount())
	}

	close(runner.block)
	w.wg.Wait()
}

func TestWorker_PollDispatchesPending(t *testing.T) {
	flowID := uuid.New()
	source := &fakeSource{flows: []domain.Flow{
		{ID: flowID, Status: domain.FlowStatusPending},
	}}
	runner := newFakeRunner()

	w := New(Config{
		Flows:  source,
		Runner: runner,
	})

	w.poll(context.Background())
	w.wg.Wait()

	if runner.runs(flowID) != 1 {
		t.Errorf("expected poll to dispatch the flow, got %d runs", runner.runs(flowID))
	}
}

func TestWorker_StartStopWithoutMQ(t *testing.T) {
	w := New(Config{
		Flows:        &fakeSource{},
		Runner:       newFakeRunner(),
		PollInterval: time.Hour, // только стартовый poll
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Stop()

	if !w.IsStopped() {
		t.Error("worker should report stopped")
	}
}

// --- Janitor Tests ---

type fakeStaleStore struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*domain.Flow
}

func newFakeStaleStore(flows ...*domain.Flow) *fakeStaleStore {
	s := &fakeStaleStore{flows: make(map[uuid.UUID]*domain.Flow)}
	for _, f := range flows {
		s.flows[f.ID] = f
	}
	return s
}

func (s *fakeStaleStore) ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Flow
	for _, f := range s.flows {
		if f.Status == domain.FlowStatusRunning && f.StartedAt != nil && f.StartedAt.Before(olderThan) {
			out = append(out, *f)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStaleStore) Transition(ctx context.Context, id uuid.UUID, to domain.FlowStatus, fields domain.TransitionFields) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if !domain.CanTransition(flow.Status, to) {
		return nil, repo.ErrInvalidTransition
	}
	errMsg := ""
	if fields.Error != nil {
		errMsg = *fields.Error
	}
	flow.MarkFailed(errMsg)
	copied := *flow
	return &copied, nil
}

func runningFlow(age time.Duration) *domain.Flow {
	started := time.Now().Add(-age)
	return &domain.Flow{
		ID:        uuid.New(),
		FlowType:  domain.FlowTypeComposite,
		Status:    domain.FlowStatusRunning,
		StartedAt: &started,
	}
}

func TestJanitor_ReapsStaleFlows(t *testing.T) {
	stale := runningFlow(time.Hour)
	fresh := runningFlow(time.Minute)
	store := newFakeStaleStore(stale, fresh)
	b := bus.NewMemoryBus()

	sub, err := b.Subscribe(context.Background(), domain.FlowChannel(stale.ID))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	j := NewJanitor(JanitorConfig{
		Store:     store,
		Bus:       b,
		MaxRunAge: 30 * time.Minute,
	})
	j.Reap(context.Background())

	if store.flows[stale.ID].Status != domain.FlowStatusFailed {
		t.Errorf("stale flow should be failed, got %s", store.flows[stale.ID].Status)
	}
	if store.flows[stale.ID].Error != "timeout" {
		t.Errorf("stale flow error should be timeout, got %q", store.flows[stale.ID].Error)
	}
	if store.flows[fresh.ID].Status != domain.FlowStatusRunning {
		t.Errorf("fresh flow must stay running, got %s", store.flows[fresh.ID].Status)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != domain.EventTypeStatus || ev.Payload["status"] != "failed" {
			t.Errorf("expected failed status event, got %v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status event for the reaped flow")
	}
}

func TestJanitor_NothingToReap(t *testing.T) {
	store := newFakeStaleStore(runningFlow(time.Minute))
	j := NewJanitor(JanitorConfig{
		Store: store,
		Bus:   bus.NewMemoryBus(),
	})

	j.Reap(context.Background())

	for _, f := range store.flows {
		if f.Status != domain.FlowStatusRunning {
			t.Errorf("flow should be untouched, got %s", f.Status)
		}
	}
}
