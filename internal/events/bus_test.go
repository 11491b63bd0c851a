package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamingStartedEvent, 1)

	unsub := bus.Subscribe(func(e StreamingStartedEvent) {
		received <- e
	})
	defer unsub()

	event := StreamingStartedEvent{
		SessionID: "abc",
		Devices:   []string{"000123", "000456"},
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.SessionID != event.SessionID || len(got.Devices) != 2 {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceLogEvent, 1)

	unsub := bus.Subscribe(func(e DeviceLogEvent) {
		received <- e
	})

	bus.Publish(DeviceLogEvent{Serial: "000123"})
	<-received

	unsub()

	bus.Publish(DeviceLogEvent{Serial: "000456"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	startedReceived := make(chan bool, 1)
	stoppedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ StreamingStartedEvent) {
		startedReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StreamingStoppedEvent) {
		stoppedReceived <- true
	})
	defer unsub2()

	bus.Publish(StreamingStartedEvent{SessionID: "a"})
	<-startedReceived

	select {
	case <-stoppedReceived:
		t.Fatal("Stopped subscriber should NOT have received StreamingStartedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DevicesChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DevicesChangedEvent{
					Count:     2,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_NilPublish(_ *testing.T) {
	var bus *Bus
	bus.Publish(DevicesChangedEvent{Count: 1})
}

func TestBus_AllEventTypes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"StreamingStarted", StreamingStartedEvent{SessionID: "a"}},
		{"StreamingStopped", StreamingStoppedEvent{SessionID: "a"}},
		{"StreamingFailed", StreamingFailedEvent{Serial: "000123", Error: "boom"}},
		{"RecordingCreated", RecordingCreatedEvent{Serial: "000123", Path: "/tmp/x.dkr"}},
		{"SaveTriggered", SaveTriggeredEvent{Serials: []string{"000123"}}},
		{"DevicesChanged", DevicesChangedEvent{Count: 2}},
		{"DeviceUpdated", DeviceUpdatedEvent{Serial: "000123"}},
		{"DeviceLog", DeviceLogEvent{Serial: "000123", Level: "ERROR", Message: "usb"}},
		{"LogEntry", LogEntryEvent{Seq: 1, Level: "info", Message: "hello"}},
	}

	seen := make(map[uint32]bool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if seen[tt.event.Type()] {
				t.Fatalf("duplicate type id %d", tt.event.Type())
			}
			seen[tt.event.Type()] = true

			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}
			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}
			if len(result) == 0 {
				t.Fatal("Unmarshaled to empty object")
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[SaveTriggeredEvent](bus, ch)
	defer unsub()

	bus.Publish(SaveTriggeredEvent{Serials: []string{"000123"}})

	received := <-ch
	ev, ok := received.(SaveTriggeredEvent)
	if !ok {
		t.Fatalf("Expected SaveTriggeredEvent, got %T", received)
	}
	if len(ev.Serials) != 1 || ev.Serials[0] != "000123" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[DeviceUpdatedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(DeviceUpdatedEvent{Serial: "000123"})
		done <- true
	}()

	<-done // Should complete without blocking
}
