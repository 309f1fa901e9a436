package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/llm"
	"github.com/shaiso/Vertex/internal/repo"
)

// fakeClient — управляемый llm.Client для тестов.
type fakeClient struct {
	mu    sync.Mutex
	calls []string // system-промпты в порядке вызовов
	fn    func(call int, prompt string) (string, error)
}

func (c *fakeClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	c.mu.Lock()
	call := len(c.calls)
	c.calls = append(c.calls, params.System)
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(call, prompt)
	}
	return "generated", nil
}

// fakeStore — in-memory FlowStore с той же логикой переходов,
// что и у хранилища в БД.
type fakeStore struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*domain.Flow
	onGet func(flow *domain.Flow) // хук для имитации гонок
}

func newFakeStore(flows ...*domain.Flow) *fakeStore {
	s := &fakeStore{flows: make(map[uuid.UUID]*domain.Flow)}
	for _, f := range flows {
		s.flows[f.ID] = f
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if s.onGet != nil {
		s.onGet(flow)
	}
	copied := *flow
	return &copied, nil
}

func (s *fakeStore) Transition(ctx context.Context, id uuid.UUID, to domain.FlowStatus, fields domain.TransitionFields) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if !domain.CanTransition(flow.Status, to) {
		return nil, repo.ErrInvalidTransition
	}
	switch to {
	case domain.FlowStatusRunning:
		flow.MarkRunning()
	case domain.FlowStatusCompleted:
		result := ""
		if fields.Result != nil {
			result = *fields.Result
		}
		flow.MarkCompleted(result)
	case domain.FlowStatusFailed:
		errMsg := ""
		if fields.Error != nil {
			errMsg = *fields.Error
		}
		flow.MarkFailed(errMsg)
	case domain.FlowStatusCancelled:
		flow.MarkCancelled()
	}
	copied := *flow
	return &copied, nil
}

func newTestFlow(flowType domain.FlowType) *domain.Flow {
	return &domain.Flow{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		FlowType:  flowType,
		Prompt:    "launch week for the new SDK",
		Status:    domain.FlowStatusPending,
		CreatedAt: time.Now(),
	}
}

func newTestChain(store FlowStore, b bus.Bus, client llm.Client) *Chain {
	return NewChain(ChainConfig{
		Store: store,
		Bus:   b,
		Executor: NewExecutor(ExecutorConfig{
			Client:       client,
			StageTimeout: time.Second,
		}),
	})
}

// collectEvents читает ровно n событий из подписки.
func collectEvents(t *testing.T, sub bus.Subscription, n int) []domain.Event {
	t.Helper()
	events := make([]domain.Event, 0, n)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed after %d events, want %d", len(events), n)
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events, want %d", len(events), n)
		}
	}
	return events
}

func assertNoMoreEvents(t *testing.T, sub bus.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Errorf("unexpected extra event: type=%s payload=%v", ev.Type, ev.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChain_CompositeHappyPath(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeComposite)
	store := newFakeStore(flow)
	b := bus.NewMemoryBus()
	client := &fakeClient{fn: func(call int, prompt string) (string, error) {
		return "output-" + string(rune('a'+call)), nil
	}}

	sub, err := b.Subscribe(context.Background(), domain.FlowChannel(flow.ID))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	chain := newTestChain(store, b, client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// running + 3 промежуточных стадии + completed. Последняя стадия
	// своего события не даёт: её контент приходит со status:completed.
	events := collectEvents(t, sub, 5)
	assertNoMoreEvents(t, sub)

	if events[0].Type != domain.EventTypeStatus || events[0].Payload["status"] != "running" {
		t.Errorf("first event should be status=running, got %v", events[0].Payload)
	}

	wantStages := []string{"strategy", "content", "community"}
	for i, want := range wantStages {
		ev := events[i+1]
		if ev.Type != domain.EventTypeStage {
			t.Fatalf("event %d: expected stage event, got %s", i+1, ev.Type)
		}
		if ev.Payload["stage"] != want {
			t.Errorf("event %d: expected stage %s, got %v", i+1, want, ev.Payload["stage"])
		}
		if ev.Payload["status"] != "completed" {
			t.Errorf("stage %s should be completed, got %v", want, ev.Payload["status"])
		}
	}

	for _, ev := range events {
		if ev.Payload["stage"] == "analytics" {
			t.Errorf("last stage must not emit its own event, got %v", ev.Payload)
		}
	}

	last := events[4]
	if last.Type != domain.EventTypeStatus || last.Payload["status"] != "completed" {
		t.Errorf("last event should be status=completed, got %v", last.Payload)
	}

	final, _ := store.GetByID(context.Background(), flow.ID)
	if final.Status != domain.FlowStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	// Результат flow — контент последней стадии.
	if final.Result != "output-d" {
		t.Errorf("expected result of last stage, got %q", final.Result)
	}
	if final.Error != "" {
		t.Errorf("completed flow must not carry an error, got %q", final.Error)
	}
	if final.StartedAt == nil || final.CompletedAt == nil || final.ExecutionTime == nil {
		t.Error("completed flow must have started_at, completed_at and execution_time")
	}
}

func TestChain_SingleStageFlow(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeContent)
	store := newFakeStore(flow)
	b := bus.NewMemoryBus()
	client := &fakeClient{}

	sub, _ := b.Subscribe(context.Background(), domain.FlowChannel(flow.ID))
	defer sub.Close()

	chain := newTestChain(store, b, client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Единственная стадия — она же последняя: running и сразу completed.
	events := collectEvents(t, sub, 2)
	assertNoMoreEvents(t, sub)

	if events[0].Payload["status"] != "running" {
		t.Errorf("first event should be status=running, got %v", events[0].Payload)
	}
	if events[1].Type != domain.EventTypeStatus || events[1].Payload["status"] != "completed" {
		t.Errorf("second event should be status=completed, got %v", events[1].Payload)
	}

	// Персона стадии уходит в system-промпт.
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 llm call, got %d", len(client.calls))
	}
	spec, _ := SpecFor(domain.StageContent)
	if client.calls[0] != spec.SystemPrompt() {
		t.Errorf("unexpected system prompt: %q", client.calls[0])
	}
}

func TestChain_StageFailureStopsChain(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeComposite)
	store := newFakeStore(flow)
	b := bus.NewMemoryBus()
	client := &fakeClient{fn: func(call int, prompt string) (string, error) {
		if call == 1 { // content, вторая стадия
			return "", &llm.GenerationError{Reason: llm.ReasonTimeout}
		}
		return "ok", nil
	}}

	sub, _ := b.Subscribe(context.Background(), domain.FlowChannel(flow.ID))
	defer sub.Close()

	chain := newTestChain(store, b, client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// running, strategy completed, content failed, status failed.
	events := collectEvents(t, sub, 4)
	assertNoMoreEvents(t, sub)

	if events[2].Payload["stage"] != "content" || events[2].Payload["status"] != "failed" {
		t.Errorf("expected failed content stage, got %v", events[2].Payload)
	}
	if events[2].Payload["error"] != "timeout" {
		t.Errorf("expected timeout reason, got %v", events[2].Payload["error"])
	}
	if events[3].Payload["status"] != "failed" || events[3].Payload["error"] != "timeout" {
		t.Errorf("expected status=failed with error, got %v", events[3].Payload)
	}

	// community и analytics не выполнялись.
	if len(client.calls) != 2 {
		t.Errorf("expected 2 llm calls, got %d", len(client.calls))
	}

	final, _ := store.GetByID(context.Background(), flow.ID)
	if final.Status != domain.FlowStatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if final.Error != "timeout" {
		t.Errorf("expected error timeout, got %q", final.Error)
	}
	if final.Result != "" {
		t.Errorf("failed flow must not carry a result, got %q", final.Result)
	}
}

func TestChain_CancelledBetweenStages(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeComposite)
	store := newFakeStore(flow)
	b := bus.NewMemoryBus()
	client := &fakeClient{}

	// Отменяем flow при первом перечитывании между стадиями.
	store.onGet = func(f *domain.Flow) {
		if f.Status == domain.FlowStatusRunning {
			f.MarkCancelled()
			store.onGet = nil
		}
	}

	sub, _ := b.Subscribe(context.Background(), domain.FlowChannel(flow.ID))
	defer sub.Close()

	chain := newTestChain(store, b, client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// running + strategy; дальше цепочка останавливается молча.
	events := collectEvents(t, sub, 2)
	assertNoMoreEvents(t, sub)

	if events[1].Payload["stage"] != "strategy" {
		t.Errorf("expected strategy stage event, got %v", events[1].Payload)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 llm call before cancellation, got %d", len(client.calls))
	}

	final, _ := store.GetByID(context.Background(), flow.ID)
	if final.Status != domain.FlowStatusCancelled {
		t.Errorf("expected cancelled, got %s", final.Status)
	}
	if final.Error != "cancelled" {
		t.Errorf("expected error cancelled, got %q", final.Error)
	}
}

func TestChain_LateResultDiscarded(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeStrategy)
	store := newFakeStore(flow)
	b := bus.NewMemoryBus()

	// Отмена прилетает во время работы единственной стадии: terminal
	// transition цепочки обязан проиграть и ничего не перезаписать.
	client := &fakeClient{fn: func(call int, prompt string) (string, error) {
		store.mu.Lock()
		store.flows[flow.ID].MarkCancelled()
		store.mu.Unlock()
		return "too late", nil
	}}

	sub, _ := b.Subscribe(context.Background(), domain.FlowChannel(flow.ID))
	defer sub.Close()

	chain := newTestChain(store, b, client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Только running: стадия последняя, а терминальный переход проигран.
	events := collectEvents(t, sub, 1)
	assertNoMoreEvents(t, sub)

	if events[0].Payload["status"] != "running" {
		t.Errorf("expected status=running, got %v", events[0].Payload)
	}

	final, _ := store.GetByID(context.Background(), flow.ID)
	if final.Status != domain.FlowStatusCancelled {
		t.Errorf("late result must not overwrite cancellation, got %s", final.Status)
	}
	if final.Result != "" {
		t.Errorf("cancelled flow must not carry a result, got %q", final.Result)
	}
}

func TestChain_AlreadyFinished(t *testing.T) {
	flow := newTestFlow(domain.FlowTypeStrategy)
	flow.Status = domain.FlowStatusCompleted
	store := newFakeStore(flow)
	client := &fakeClient{}

	chain := newTestChain(store, bus.NewMemoryBus(), client)
	if err := chain.Run(context.Background(), flow.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("finished flow must not trigger generation, got %d calls", len(client.calls))
	}
}

func TestChain_FlowNotFound(t *testing.T) {
	store := newFakeStore()
	chain := newTestChain(store, bus.NewMemoryBus(), &fakeClient{})

	err := chain.Run(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error for missing flow")
	}
}

func TestStageSpec_UserPromptCarriesContext(t *testing.T) {
	spec, err := SpecFor(domain.StageContent)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}

	prior := []domain.StageResult{
		{StageName: domain.StageStrategy, Status: domain.StageStatusCompleted, Content: "plan A"},
		{StageName: domain.StageCommunity, Status: domain.StageStatusFailed, Error: "timeout"},
	}
	prompt := spec.UserPrompt("new SDK", prior)

	if !containsAll(prompt, "Generate blog/tutorial drafts", "Markdown content and code.", "plan A", "strategy") {
		t.Errorf("prompt missing expected parts: %q", prompt)
	}
	if strings.Contains(prompt, "timeout") {
		t.Errorf("failed stage output must not leak into context: %q", prompt)
	}
}

func TestStageSpec_UserPromptForFirstStageWithoutTemplate(t *testing.T) {
	spec, _ := SpecFor(domain.StageContent)
	prompt := spec.UserPrompt("write a pgx tutorial", nil)
	if !strings.Contains(prompt, "Request: write a pgx tutorial") {
		t.Errorf("single-stage flow should pass the user request through: %q", prompt)
	}
}

func TestStageSpec_TaskInterpolation(t *testing.T) {
	spec, _ := SpecFor(domain.StageStrategy)
	prompt := spec.UserPrompt("launch plan", nil)
	if !strings.Contains(prompt, "DevRel strategy for: launch plan") {
		t.Errorf("strategy task should embed the user prompt: %q", prompt)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
