package mqtt

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/device"
	"github.com/walnutpair/previewd/internal/core/state"
	"github.com/walnutpair/previewd/internal/dispatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopic(t *testing.T) {
	p := &BrokerPublisher{cfg: Config{TopicPrefix: "previewd", StationID: "station_03"}}

	tests := []struct {
		suffix string
		want   string
	}{
		{"status", "previewd/station_03/status"},
		{"devices", "previewd/station_03/devices"},
		{"capture/last", "previewd/station_03/capture/last"},
	}
	for _, tt := range tests {
		if got := p.topic(tt.suffix); got != tt.want {
			t.Errorf("topic(%q) = %q, want %q", tt.suffix, got, tt.want)
		}
	}
}

func TestDevicesPayload(t *testing.T) {
	cams := []device.Camera{
		{UniqueID: "a1b2", Index: 0, Name: "Front"},
		{UniqueID: "c3d4", Index: 1},
	}

	payload := devicesPayload(cams)

	if payload["count"] != 2 {
		t.Errorf("count = %v, want 2", payload["count"])
	}
	list := payload["cameras"].([]map[string]interface{})
	if len(list) != 2 {
		t.Fatalf("cameras = %v", list)
	}
	if list[0]["unique_id"] != "a1b2" || list[0]["name"] != "Front" {
		t.Errorf("first camera = %v", list[0])
	}
	if _, ok := list[1]["name"]; ok {
		t.Error("unnamed camera should omit the name field")
	}
}

func TestPreviewsPayload(t *testing.T) {
	snap := state.Aggregate{
		AvailableCameras: []device.Camera{
			{UniqueID: "a1b2", Index: 0},
			{UniqueID: "c3d4", Index: 1},
			{UniqueID: "e5f6", Index: 2},
		},
		ActivePreviews: map[string]struct{}{
			"e5f6": {},
			"a1b2": {},
		},
	}

	payload := previewsPayload(snap)

	if payload["count"] != 2 {
		t.Errorf("count = %v, want 2", payload["count"])
	}
	active := payload["active"].([]string)
	if len(active) != 2 || active[0] != "a1b2" || active[1] != "e5f6" {
		t.Errorf("active = %v, want enumeration order [a1b2 e5f6]", active)
	}
}

func TestCapturePayload(t *testing.T) {
	cc := dispatch.CaptureCompleted{
		RunID: "run-1",
		Result: backend.CaptureResult{
			CapturedCount: 3,
			TotalCameras:  4,
			SavedPaths:    map[string]string{"a1b2": "/captures/a1b2.jpg"},
			Errors:        []string{"c3d4: timeout"},
		},
		Summary: "Captured 3 of 4 cameras. Errors: c3d4: timeout",
	}

	payload := capturePayload(cc)

	if payload["run_id"] != "run-1" {
		t.Errorf("run_id = %v", payload["run_id"])
	}
	if payload["captured_count"] != 3 || payload["total_cameras"] != 4 {
		t.Errorf("counts = %v/%v", payload["captured_count"], payload["total_cameras"])
	}
	if payload["summary"] != cc.Summary {
		t.Errorf("summary = %v", payload["summary"])
	}
}

func TestBrokerPublisher_StopIsIdempotent(t *testing.T) {
	p := NewBrokerPublisher(Config{TopicPrefix: "previewd", StationID: "station_01"}, nil, nil, testLogger())

	// Never started: both stops must still return cleanly.
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestStubPublisher(t *testing.T) {
	p := NewStubPublisher(testLogger())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
