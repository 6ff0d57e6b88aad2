package notifier

import (
	"context"
	"testing"
	"time"
)

func TestMemoryNotifierDeliversToProjectSubscriber(t *testing.T) {
	n := NewMemoryNotifier()
	ch, cancel := n.Subscribe("proj-1")
	defer cancel()

	if err := n.Publish(context.Background(), "proj-1", EventAnalysisStarted, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != EventAnalysisStarted {
			t.Fatalf("expected analysis_started, got %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryNotifierIsolatesProjects(t *testing.T) {
	n := NewMemoryNotifier()
	ch1, cancel1 := n.Subscribe("proj-1")
	defer cancel1()
	ch2, cancel2 := n.Subscribe("proj-2")
	defer cancel2()

	if err := n.Publish(context.Background(), "proj-1", EventLinkUpdated, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("proj-1 subscriber did not receive its event")
	}

	select {
	case evt := <-ch2:
		t.Fatalf("proj-2 subscriber should not see proj-1 events, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryNotifierPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	n := NewMemoryNotifier()
	_, cancel := n.Subscribe("proj-1")
	defer cancel()

	ctx := context.Background()
	for i := 0; i < subscriberBuffer+10; i++ {
		if err := n.Publish(ctx, "proj-1", EventLinkUpdated, i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
}
