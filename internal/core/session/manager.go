package session

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	// Frames are opaque compressed stills; JPEG and PNG cover the backend.
	_ "image/jpeg"
	_ "image/png"

	"github.com/walnutpair/previewd/internal/core/transport"
)

const keepaliveInterval = 25 * time.Second

// Manager owns at most one session per camera unique_id.
type Manager struct {
	backend  PreviewControl
	dialer   transport.Dialer
	store    Membership
	renderer Renderer
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a session manager.
func NewManager(
	backend PreviewControl,
	dialer transport.Dialer,
	store Membership,
	renderer Renderer,
	log *slog.Logger,
) *Manager {
	return &Manager{
		backend:  backend,
		dialer:   dialer,
		store:    store,
		renderer: renderer,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Start opens a preview session for the camera. It is idempotent: a camera
// that is already connecting or streaming is left alone and nil is returned,
// so duplicate start commands never open a second transport.
func (m *Manager) Start(ctx context.Context, uniqueID string, width, height int) error {
	m.mu.Lock()
	if existing, ok := m.sessions[uniqueID]; ok && existing.Status() != StatusInactive {
		m.mu.Unlock()
		m.log.Debug("preview already active, ignoring start", "camera_unique_id", uniqueID)
		return nil
	}
	s := &Session{uniqueID: uniqueID, status: StatusConnecting}
	m.sessions[uniqueID] = s
	m.mu.Unlock()

	if _, err := m.backend.StartPreview(ctx, uniqueID, width, height); err != nil {
		m.remove(s)
		return &ConnectError{UniqueID: uniqueID, Err: err}
	}

	conn, err := m.dialer.Dial(ctx, uniqueID)
	if err != nil {
		// The backend opened the camera; release it again, best effort.
		if _, stopErr := m.backend.StopPreview(context.WithoutCancel(ctx), uniqueID); stopErr != nil {
			m.log.Warn("failed to release camera after dial failure", "camera_unique_id", uniqueID, "error", stopErr)
		}
		m.remove(s)
		return &ConnectError{UniqueID: uniqueID, Err: err}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.status = StatusStreaming
	s.mu.Unlock()

	// A concurrent stop may have torn us out of the table while the backend
	// call was in flight. Our response returned last, so our commit wins:
	// take the slot back. Yield only to a newer session that claimed it.
	m.mu.Lock()
	if other, ok := m.sessions[uniqueID]; ok && other != s {
		m.mu.Unlock()
		cancel()
		conn.Close()
		s.mu.Lock()
		s.status = StatusInactive
		s.mu.Unlock()
		return nil
	}
	m.sessions[uniqueID] = s
	m.mu.Unlock()

	if !m.store.SetPreviewActive(uniqueID) {
		// The aggregate doesn't list this camera, so the membership commit
		// was rejected. A streaming session the state can't see would be
		// unstoppable through normal reconciliation; undo everything.
		if _, stopErr := m.backend.StopPreview(context.WithoutCancel(ctx), uniqueID); stopErr != nil {
			m.log.Warn("failed to release rejected camera", "camera_unique_id", uniqueID, "error", stopErr)
		}
		cancel()
		conn.Close()
		m.remove(s)
		return &ConnectError{UniqueID: uniqueID, Err: ErrUnknownCamera}
	}
	m.log.Info("preview session streaming", "camera_unique_id", uniqueID)

	m.wg.Add(2)
	go m.readLoop(sctx, s, conn)
	go m.keepaliveLoop(sctx, s, conn)
	return nil
}

// Stop closes the session for the camera and tells the backend to release
// it. The local session is always torn down; the returned error only
// reflects the backend call.
func (m *Manager) Stop(ctx context.Context, uniqueID string) error {
	m.mu.Lock()
	s, ok := m.sessions[uniqueID]
	m.mu.Unlock()

	if ok {
		m.teardown(s)
	} else {
		// Reconcile any stray membership for a session we no longer track.
		m.store.SetPreviewInactive(uniqueID)
	}

	if _, err := m.backend.StopPreview(ctx, uniqueID); err != nil {
		return err
	}
	m.log.Info("preview session stopped", "camera_unique_id", uniqueID)
	return nil
}

// StopAll stops every tracked session, used during shutdown and when devices
// vanish from an enumeration.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.log.Warn("failed to stop preview", "camera_unique_id", id, "error", err)
		}
	}
}

// Close stops all sessions and waits for read loops and in-flight decodes.
func (m *Manager) Close(ctx context.Context) {
	m.StopAll(ctx)
	m.wg.Wait()
}

// Status returns the session state for a camera; untracked cameras are
// inactive.
func (m *Manager) Status(uniqueID string) Status {
	m.mu.Lock()
	s, ok := m.sessions[uniqueID]
	m.mu.Unlock()
	if !ok {
		return StatusInactive
	}
	return s.Status()
}

// DecodeFailures returns the decode failure count for a camera's current
// session.
func (m *Manager) DecodeFailures(uniqueID string) uint64 {
	m.mu.Lock()
	s, ok := m.sessions[uniqueID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return s.decodeFailures.Load()
}

// remove drops a session that never reached streaming.
func (m *Manager) remove(s *Session) {
	s.mu.Lock()
	s.status = StatusInactive
	s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[s.uniqueID] == s {
		delete(m.sessions, s.uniqueID)
	}
	m.mu.Unlock()
}

// teardown forces a session to inactive: close the transport, stop its
// goroutines, discard its rendered frame, and commit the membership removal.
// In-flight decodes see the inactive status and are dropped unpainted.
func (m *Manager) teardown(s *Session) {
	s.mu.Lock()
	alreadyInactive := s.status == StatusInactive
	s.status = StatusInactive
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	m.mu.Lock()
	if m.sessions[s.uniqueID] == s {
		delete(m.sessions, s.uniqueID)
	}
	m.mu.Unlock()

	if !alreadyInactive {
		m.renderer.Discard(s.uniqueID)
		m.store.SetPreviewInactive(s.uniqueID)
	}
}

// readLoop receives frames in transport order and hands each one to its own
// decode goroutine. Frame N+1 never waits for frame N's decode; whichever
// completed decode is painted last wins, which is acceptable for a live
// preview.
func (m *Manager) readLoop(ctx context.Context, s *Session, conn transport.Conn) {
	defer m.wg.Done()

	for {
		frame, err := conn.RecvFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || s.Status() == StatusInactive {
				// Deliberate stop closed the connection out from under us.
				return
			}
			terr := &TransportError{UniqueID: s.uniqueID, Err: err}
			m.log.Warn("preview stream ended", "camera_unique_id", s.uniqueID, "error", err)
			m.teardown(s)
			m.store.SetMessage(terr.Error())
			return
		}

		m.wg.Add(1)
		go m.decodeAndPaint(s, frame)
	}
}

// decodeAndPaint decodes one frame and paints it, replacing the previous
// frame wholesale. A decode failure is logged and ignored; it never changes
// session state. The liveness check sits immediately before the paint so a
// frame for a session that went inactive mid-decode is discarded.
func (m *Manager) decodeAndPaint(s *Session, frame []byte) {
	defer m.wg.Done()

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		n := s.decodeFailures.Add(1)
		m.log.Debug("frame decode failed", "camera_unique_id", s.uniqueID, "failures", n, "error", err)
		return
	}

	if !s.live() {
		m.log.Debug("dropping frame for closed session", "camera_unique_id", s.uniqueID)
		return
	}
	m.renderer.Paint(s.uniqueID, img)
}

func (m *Manager) keepaliveLoop(ctx context.Context, s *Session, conn transport.Conn) {
	defer m.wg.Done()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				if s.Status() == StatusInactive {
					return
				}
				m.log.Warn("keepalive ping failed", "camera_unique_id", s.uniqueID, "error", err)
				m.teardown(s)
				m.store.SetMessage((&TransportError{UniqueID: s.uniqueID, Err: err}).Error())
				return
			}
		}
	}
}
