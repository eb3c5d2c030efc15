// Package session manages live preview stream sessions, one per camera. A
// session owns exactly one transport connection and the decode/render of the
// frames arriving on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/transport"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusConnecting Status = "connecting"
	StatusStreaming  Status = "streaming"
)

// ErrUnknownCamera marks a start for a camera the aggregate state does not
// list; the membership commit was rejected.
var ErrUnknownCamera = errors.New("camera not in the known device list")

// ConnectError is a start failure before streaming began.
type ConnectError struct {
	UniqueID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session %s: connect: %v", e.UniqueID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError is a mid-stream close or error; the session is forced to
// inactive when it occurs.
type TransportError struct {
	UniqueID string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: transport: %v", e.UniqueID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PreviewControl is the backend surface the session layer needs.
type PreviewControl interface {
	StartPreview(ctx context.Context, uniqueID string, width, height int) (backend.StartStopResult, error)
	StopPreview(ctx context.Context, uniqueID string) (backend.StartStopResult, error)
}

// Membership receives session membership commits. Satisfied by *state.Store.
type Membership interface {
	SetPreviewActive(uniqueID string) bool
	SetPreviewInactive(uniqueID string)
	SetMessage(msg string)
}

// Session is the live streaming relationship with one camera.
type Session struct {
	uniqueID string

	mu     sync.Mutex
	status Status
	conn   transport.Conn
	cancel context.CancelFunc

	decodeFailures atomic.Uint64
}

// Status returns the session's current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// live reports whether frames for this session may still be painted.
func (s *Session) live() bool {
	return s.Status() == StatusStreaming
}
