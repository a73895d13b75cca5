package events

import "testing"

// TestBus_TopicRouting verifies topic subscribers only see their topic
// while all-topic subscribers see everything.
func TestBus_TopicRouting(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 8)
	waveCh := bus.Subscribe(TopicWave, 8)
	allCh := bus.SubscribeAll(8)

	bus.Publish(TopicTask, TaskStarted{Run: "r1", Task: "a"})
	bus.Publish(TopicWave, WaveStarted{Run: "r1", Wave: 0})

	if ev := <-taskCh; ev.Kind() != KindTaskStarted {
		t.Errorf("task subscriber: expected %q, got %q", KindTaskStarted, ev.Kind())
	}
	if ev := <-waveCh; ev.Kind() != KindWaveStarted {
		t.Errorf("wave subscriber: expected %q, got %q", KindWaveStarted, ev.Kind())
	}
	for i := 0; i < 2; i++ {
		if ev := <-allCh; ev.RunID() != "r1" {
			t.Errorf("all subscriber: unexpected run ID %q", ev.RunID())
		}
	}

	select {
	case ev := <-taskCh:
		t.Errorf("task subscriber received cross-topic event %q", ev.Kind())
	default:
	}
}

// TestBus_NonBlockingPublish verifies a full subscriber buffer drops the
// event instead of stalling the publisher.
func TestBus_NonBlockingPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)
	bus.Publish(TopicTask, TaskStarted{Run: "r1", Task: "a"})
	bus.Publish(TopicTask, TaskStarted{Run: "r1", Task: "b"})

	first := (<-ch).(TaskStarted)
	if first.Task != "a" {
		t.Errorf("expected buffered event a, got %q", first.Task)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected overflow event dropped, got %v", ev)
	default:
	}
}

// TestBus_Close verifies subscriber channels close and later calls no-op.
func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch := bus.SubscribeAll(4)

	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Close")
	}

	// Publish and Subscribe after close must not panic.
	bus.Publish(TopicTask, TaskStarted{Run: "r1"})
	late := bus.Subscribe(TopicTask, 4)
	if _, ok := <-late; ok {
		t.Error("expected closed channel from post-close Subscribe")
	}
}
