package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/state"
)

// CaptureCompleted is the event payload published after a capture-all run.
type CaptureCompleted struct {
	RunID   string                `json:"run_id"`
	Result  backend.CaptureResult `json:"result"`
	Summary string                `json:"summary"`
}

// CaptureAll triggers a synchronized capture across every known camera. A
// partial result (some cameras failed) is summarized and surfaced as an
// informational message; it does not touch the device list or the active
// preview set. Only a failure of the capture-all call itself is reported as
// an error.
func (d *Dispatcher) CaptureAll() {
	d.spawn("capture_all", func(ctx context.Context) {
		d.store.SetCapturing(true)
		defer d.store.SetCapturing(false)

		runID := uuid.New().String()
		d.log.Info("capture-all started", "run_id", runID)

		res, err := d.capturer.CaptureAll(ctx)
		if err != nil {
			d.log.Error("capture-all failed", "run_id", runID, "error", err)
			d.store.SetMessage("capture failed: " + err.Error())
			return
		}

		summary := FormatCaptureSummary(res)
		d.log.Info("capture-all complete",
			"run_id", runID,
			"captured", res.CapturedCount,
			"total", res.TotalCameras,
			"errors", len(res.Errors),
		)
		d.store.SetMessage(summary)
		d.bus.Publish(state.Event{
			Type: state.EventCaptureComplete,
			Data: CaptureCompleted{RunID: runID, Result: res, Summary: summary},
		})
	})
}

// FormatCaptureSummary renders the user-facing capture report: both counts
// and every per-device error.
func FormatCaptureSummary(res backend.CaptureResult) string {
	msg := fmt.Sprintf("Captured %d of %d cameras.", res.CapturedCount, res.TotalCameras)
	if len(res.Errors) > 0 {
		msg += " Errors: " + strings.Join(res.Errors, "; ")
	}
	return msg
}
