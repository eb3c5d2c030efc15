// Package previewd provides a public facade re-exporting core types
// for external consumers of this module.
package previewd

import (
	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/device"
	"github.com/walnutpair/previewd/internal/core/session"
	"github.com/walnutpair/previewd/internal/core/state"
	"github.com/walnutpair/previewd/internal/core/transport"
)

// Re-export core types for external use.
type (
	// Camera describes one enumerated camera device.
	Camera = device.Camera
	// Aggregate is a snapshot of all client-side state.
	Aggregate = state.Aggregate
	// Event represents a state change event.
	Event = state.Event
	// EventType identifies event categories.
	EventType = state.EventType
	// Status identifies a preview session's lifecycle phase.
	Status = session.Status
	// CaptureResult holds the outcome of a capture-all call.
	CaptureResult = backend.CaptureResult
	// StartStopResult holds the outcome of a preview start or stop call.
	StartStopResult = backend.StartStopResult
	// Dialer creates websocket connections to preview streams.
	Dialer = transport.Dialer
	// Conn represents a websocket stream connection.
	Conn = transport.Conn
)

// Session status constants.
const (
	StatusInactive   = session.StatusInactive
	StatusConnecting = session.StatusConnecting
	StatusStreaming  = session.StatusStreaming
)

// Event type constants.
const (
	EventDevicesUpdate   = state.EventDevicesUpdate
	EventPreviewStarted  = state.EventPreviewStarted
	EventPreviewStopped  = state.EventPreviewStopped
	EventCaptureComplete = state.EventCaptureComplete
	EventMessage         = state.EventMessage
	EventLoading         = state.EventLoading
	EventCapturing       = state.EventCapturing
)
