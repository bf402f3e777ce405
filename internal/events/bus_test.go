/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventQueueUpdated)

	bus.Publish(EventQueueUpdated, Payload{"program_id": "p1"})

	select {
	case payload := <-sub:
		if payload["program_id"] != "p1" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusDoesNotCrossDeliver(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPolicyUpdated)

	bus.Publish(EventQueueUpdated, Payload{})

	select {
	case payload := <-sub:
		t.Fatalf("unexpected delivery: %v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlacementRecorded)
	bus.Unsubscribe(EventPlacementRecorded, sub)

	if _, open := <-sub; open {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestBusPublishSkipsFullSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventQueueUpdated)

	// Channel capacity is 8; publishing more must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			bus.Publish(EventQueueUpdated, Payload{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	if len(sub) != 8 {
		t.Fatalf("buffered %d events, want 8", len(sub))
	}
}
