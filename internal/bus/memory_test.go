package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
)

func statusEvent(status domain.FlowStatus) domain.Event {
	return domain.NewStatusEvent(uuid.New(), status, "")
}

func TestMemoryBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus()

	// No subscribers: publish must be a silent no-op.
	if err := b.Publish(context.Background(), "flow:x", statusEvent(domain.FlowStatusRunning)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SubscriberCount("flow:x") != 0 {
		t.Error("publish must not create a channel")
	}
}

func TestMemoryBus_DeliveryOrder(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "flow:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	statuses := []domain.FlowStatus{
		domain.FlowStatusRunning,
		domain.FlowStatusCompleted,
	}
	for _, s := range statuses {
		if err := b.Publish(ctx, "flow:1", statusEvent(s)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for _, want := range statuses {
		select {
		case ev := <-sub.Events():
			if ev.Payload["status"] != string(want) {
				t.Errorf("expected status %s, got %v", want, ev.Payload["status"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryBus_NoBufferingForLateSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	// Event published before anyone subscribes is lost.
	b.Publish(ctx, "flow:1", statusEvent(domain.FlowStatusRunning))

	sub, _ := b.Subscribe(ctx, "flow:1")
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		t.Errorf("late subscriber must not receive buffered events, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CloseEndsStream(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "flow:1")
	if b.SubscriberCount("flow:1") != 1 {
		t.Fatal("expected one subscriber")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Double close is safe.
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel should be closed")
	}

	// Channel ceases to exist once the last subscriber is gone.
	if b.SubscriberCount("flow:1") != 0 {
		t.Error("channel should be forgotten after last unsubscribe")
	}

	// Publishing after unsubscribe is still a no-op.
	if err := b.Publish(ctx, "flow:1", statusEvent(domain.FlowStatusCompleted)); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestMemoryBus_ChannelsAreIsolated(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub1, _ := b.Subscribe(ctx, "flow:1")
	defer sub1.Close()
	sub2, _ := b.Subscribe(ctx, "flow:2")
	defer sub2.Close()

	b.Publish(ctx, "flow:1", statusEvent(domain.FlowStatusRunning))

	select {
	case <-sub1.Events():
	case <-time.After(time.Second):
		t.Fatal("subscriber of flow:1 should receive the event")
	}

	select {
	case ev := <-sub2.Events():
		t.Errorf("subscriber of flow:2 should not receive flow:1 events, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub1, _ := b.Subscribe(ctx, "flow:1")
	defer sub1.Close()
	sub2, _ := b.Subscribe(ctx, "flow:1")
	defer sub2.Close()

	b.Publish(ctx, "flow:1", statusEvent(domain.FlowStatusRunning))

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i+1)
		}
	}
}
