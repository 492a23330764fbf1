package events

import (
	"testing"
	"time"
)

func TestPublisher_CursorsMonotonic(t *testing.T) {
	p := NewPublisher()

	e1 := p.Publish(Event{MonitorID: "m1", Type: TypeCheckResult})
	e2 := p.Publish(Event{MonitorID: "m1", Type: TypeStateChange})

	if e2.Cursor <= e1.Cursor {
		t.Errorf("expected strictly increasing cursors, got %d then %d", e1.Cursor, e2.Cursor)
	}
}

func TestPublisher_Since(t *testing.T) {
	p := NewPublisher()
	e1 := p.Publish(Event{MonitorID: "m1", Type: TypeCheckResult})
	e2 := p.Publish(Event{MonitorID: "m1", Type: TypeStateChange})
	e3 := p.Publish(Event{MonitorID: "m2", Type: TypeCheckResult})

	since := p.Since(e1.Cursor)
	if len(since) != 2 {
		t.Fatalf("expected 2 events after cursor %d, got %d", e1.Cursor, len(since))
	}
	if since[0].Cursor != e2.Cursor || since[1].Cursor != e3.Cursor {
		t.Errorf("expected events in cursor order, got %+v", since)
	}
}

func TestPublisher_SinceZeroReturnsEverything(t *testing.T) {
	p := NewPublisher()
	p.Publish(Event{MonitorID: "m1"})
	p.Publish(Event{MonitorID: "m1"})

	if got := len(p.Since(0)); got != 2 {
		t.Errorf("expected all buffered events, got %d", got)
	}
}

func TestPublisher_BufferBounded(t *testing.T) {
	p := NewPublisher()
	for i := 0; i < maxBuffer+50; i++ {
		p.Publish(Event{MonitorID: "m1"})
	}

	if got := len(p.Since(0)); got != maxBuffer {
		t.Errorf("expected buffer capped at %d, got %d", maxBuffer, got)
	}
}

func TestPublisher_SubscribeReceivesDirectPush(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(4)
	defer cancel()

	p.Publish(Event{MonitorID: "m1", Type: TypeStateChange})

	select {
	case evt := <-ch:
		if evt.MonitorID != "m1" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a direct push within 1s")
	}
}

func TestPublisher_SubscribeCancelStopsDelivery(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(4)
	cancel()

	p.Publish(Event{MonitorID: "m1"})

	select {
	case evt, ok := <-ch:
		if ok {
			t.Errorf("expected channel to be closed or empty after cancel, got %+v", evt)
		}
	case <-time.After(100 * time.Millisecond):
		// No delivery after cancel, as expected.
	}
}

func TestPublisher_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	p := NewPublisher()
	_, cancel := p.Subscribe(1) // unbuffered beyond 1, never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Publish(Event{MonitorID: "m1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish should never block on a slow subscriber")
	}
}

func TestConsumer_DeduplicatesByMonitorAndCheckID(t *testing.T) {
	c := NewConsumer(0)

	evt := Event{Cursor: 1, MonitorID: "m1", CheckID: "chk-1"}
	if !c.Accept(evt) {
		t.Error("expected the first delivery to be accepted")
	}
	if c.Accept(evt) {
		t.Error("expected a re-delivery of the same (monitorID, checkID) to be rejected")
	}
}

func TestConsumer_CursorAdvances(t *testing.T) {
	c := NewConsumer(0)
	c.Accept(Event{Cursor: 5, MonitorID: "m1", CheckID: "chk-1"})
	c.Accept(Event{Cursor: 3, MonitorID: "m1", CheckID: "chk-2"})

	if c.Cursor() != 5 {
		t.Errorf("expected cursor to track the highest seen value, got %d", c.Cursor())
	}
}
