package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventSkillStarted)

	bus.Publish(NewTypedEvent(SourceSkill, SkillStartedPayload{Skill: "create_order"}))
	bus.Publish(NewTypedEvent(SourceTool, ToolCallPayload{Status: ToolStatusStarted, Name: "get_document"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventSkillStarted {
		t.Errorf("expected skill.started, got %s", received[0].Type)
	}
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(16)
	defer unsub()

	for i := 0; i < 10; i++ {
		bus.Publish(NewTypedEvent(SourceSkill, SkillStepStartedPayload{Index: i}))
	}

	for i := 0; i < 10; i++ {
		select {
		case e := <-ch:
			p, ok := ExtractPayload[SkillStepStartedPayload](e)
			if !ok {
				t.Fatalf("event %d: unexpected payload", i)
			}
			if p.Index != i {
				t.Fatalf("expected index %d, got %d", i, p.Index)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestBusClosedIgnoresPublish(t *testing.T) {
	bus := NewBus(4)
	bus.Close()
	bus.Close()

	bus.Publish(NewEvent(EventToolCall, SourceTool, nil))
	if n := len(bus.History(10)); n != 0 {
		t.Errorf("expected no history after close, got %d", n)
	}
}

func TestHistory_Window(t *testing.T) {
	rb := NewHistory(3)
	for i := 0; i < 5; i++ {
		rb.Add(NewEvent(EventToolCall, SourceTool, map[string]any{"i": i}))
	}

	if rb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", rb.Len())
	}
	events := rb.Find(Query{Limit: 10})
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Payload["i"] != 2 || events[2].Payload["i"] != 4 {
		t.Errorf("expected oldest-first window [2..4], got %v .. %v", events[0].Payload["i"], events[2].Payload["i"])
	}
}

func TestHistory_Find(t *testing.T) {
	rb := NewHistory(16)
	add := func(typ EventType, runID string, i int) {
		e := NewEvent(typ, SourceSkill, map[string]any{"i": i})
		e.RunID = runID
		rb.Add(e)
	}
	add(EventSkillStarted, "run-a", 0)
	add(EventSkillStepCompleted, "run-a", 1)
	add(EventSkillStarted, "run-b", 2)
	add(EventSkillStepCompleted, "run-a", 3)
	add(EventSkillCompleted, "run-a", 4)

	got := rb.Find(Query{RunID: "run-a"})
	if len(got) != 4 || got[0].Payload["i"] != 0 || got[3].Payload["i"] != 4 {
		t.Errorf("expected the four run-a events in order, got %v", got)
	}

	got = rb.Find(Query{RunID: "run-a", Types: []EventType{EventSkillStepCompleted}, Limit: 1})
	if len(got) != 1 || got[0].Payload["i"] != 3 {
		t.Errorf("expected the newest run-a step, got %v", got)
	}

	if got := rb.Find(Query{RunID: "run-c"}); len(got) != 0 {
		t.Errorf("expected no events, got %v", got)
	}
}

func TestSubscribeChanUnsubscribeTwice(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	_, unsub := bus.SubscribeChan(1)
	unsub()
	unsub()
	bus.Publish(NewEvent(EventToolCall, SourceTool, nil))
	time.Sleep(20 * time.Millisecond)
}

func TestBusWatch_FiltersByRun(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	got := make(chan Event, 4)
	cancel := bus.Watch(Query{RunID: "run-a"}, func(e Event) { got <- e })
	defer cancel()

	for _, run := range []string{"run-b", "run-a"} {
		e := NewEvent(EventSkillStarted, SourceSkill, nil)
		e.RunID = run
		bus.Publish(e)
	}

	select {
	case e := <-got:
		if e.RunID != "run-a" {
			t.Fatalf("received event of %s", e.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for run-a event")
	}
	select {
	case e := <-got:
		t.Errorf("unexpected extra event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}
