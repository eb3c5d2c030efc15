package state

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/walnutpair/previewd/internal/core/device"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *EventBus) {
	t.Helper()
	bus := NewEventBus(testLogger())
	store := NewStore(bus, testLogger())
	t.Cleanup(store.Close)
	return store, bus
}

func cams(ids ...string) []device.Camera {
	out := make([]device.Camera, len(ids))
	for i, id := range ids {
		out[i] = device.Camera{UniqueID: id, Index: i}
	}
	return out
}

func TestStore_SetPreviewActiveRejectsUnknownCamera(t *testing.T) {
	store, _ := newTestStore(t)
	store.ReplaceDevices(cams("cam1"))

	if store.SetPreviewActive("ghost") {
		t.Fatal("expected preview for unknown camera to be rejected")
	}
	if store.PreviewActive("ghost") {
		t.Fatal("rejected preview must not appear in the active set")
	}

	if !store.SetPreviewActive("cam1") {
		t.Fatal("expected preview for known camera to be accepted")
	}
	if !store.PreviewActive("cam1") {
		t.Fatal("accepted preview missing from the active set")
	}
}

func TestStore_SetPreviewInactiveAbsentIsNoop(t *testing.T) {
	store, bus := newTestStore(t)
	store.ReplaceDevices(cams("cam1"))

	ch, unsub := bus.Subscribe(8)
	defer unsub()

	store.SetPreviewInactive("cam1")

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q for removing an absent preview", evt.Type)
	default:
	}
}

func TestStore_ReplaceDevicesPrunesVanishedPreviews(t *testing.T) {
	store, _ := newTestStore(t)
	store.ReplaceDevices(cams("cam1", "cam2"))
	store.SetPreviewActive("cam1")
	store.SetPreviewActive("cam2")

	pruned := store.ReplaceDevices(cams("cam2"))

	if len(pruned) != 1 || pruned[0] != "cam1" {
		t.Fatalf("pruned = %v, want [cam1]", pruned)
	}
	if store.PreviewActive("cam1") {
		t.Fatal("vanished camera still in the active set")
	}
	if !store.PreviewActive("cam2") {
		t.Fatal("surviving camera dropped from the active set")
	}
}

func TestAggregate_ActivePreviewIDsFollowEnumerationOrder(t *testing.T) {
	store, _ := newTestStore(t)
	store.ReplaceDevices(cams("cam1", "cam2", "cam3"))

	// Activate out of enumeration order.
	store.SetPreviewActive("cam3")
	store.SetPreviewActive("cam1")

	snap := store.Snapshot()
	got := snap.ActivePreviewIDs()
	want := []string{"cam1", "cam3"}
	if len(got) != len(want) {
		t.Fatalf("ActivePreviewIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ActivePreviewIDs() = %v, want %v", got, want)
		}
	}
}

func TestStore_EventsPublishedInCommitOrder(t *testing.T) {
	store, bus := newTestStore(t)

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	store.SetMessage("a")
	store.SetMessage("b")
	store.SetMessage("c")

	want := []string{"a", "b", "c"}
	for i, w := range want {
		select {
		case evt := <-ch:
			if evt.Type != EventMessage {
				t.Fatalf("event %d type = %q, want %q", i, evt.Type, EventMessage)
			}
			if evt.Data.(string) != w {
				t.Fatalf("event %d data = %v, want %q", i, evt.Data, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	store, _ := newTestStore(t)
	store.ReplaceDevices(cams("cam1", "cam2", "cam3", "cam4"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.SetPreviewActive("cam1")
				store.SetPreviewInactive("cam1")
				store.SetLoading(true)
				store.SetLoading(false)
				store.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := store.Snapshot()
	if snap.Loading {
		t.Fatal("loading flag stuck on after all commits drained")
	}
	if len(snap.AvailableCameras) != 4 {
		t.Fatalf("device list corrupted: %d cameras", len(snap.AvailableCameras))
	}
}

func TestStore_CommitAfterCloseIsDropped(t *testing.T) {
	bus := NewEventBus(testLogger())
	store := NewStore(bus, testLogger())
	store.Close()

	// Must not panic; the commit is logged and dropped.
	store.SetMessage("too late")

	if got := store.Snapshot().LastMessage; got != "" {
		t.Fatalf("message committed after close: %q", got)
	}
}

func TestEventBus_DropsOnFullSubscriber(t *testing.T) {
	bus := NewEventBus(testLogger())

	ch, unsub := bus.Subscribe(1)

	bus.Publish(Event{Type: EventMessage, Data: "first"})
	bus.Publish(Event{Type: EventMessage, Data: "second"})

	evt := <-ch
	if evt.Data.(string) != "first" {
		t.Fatalf("got %v, want first", evt.Data)
	}
	select {
	case evt := <-ch:
		t.Fatalf("second event should have been dropped, got %v", evt.Data)
	default:
	}
	unsub()
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(testLogger())

	_, unsub := bus.Subscribe(4)
	unsub()

	// Publishing after unsubscribe must not block or panic.
	bus.Publish(Event{Type: EventMessage, Data: "after"})
}
