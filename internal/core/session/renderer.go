package session

import (
	"image"
	"sync"
	"time"
)

// Renderer receives decoded frames from streaming sessions. Paint replaces
// the previously rendered frame wholesale; there is no inter-frame diffing.
type Renderer interface {
	Paint(cameraUniqueID string, frame image.Image)
	// Discard drops any rendered frame for a camera whose session closed.
	Discard(cameraUniqueID string)
}

// CachedFrame is a rendered frame plus the time it was painted.
type CachedFrame struct {
	Image     image.Image
	PaintedAt time.Time
}

// FrameCache is the default renderer: it retains the most recently painted
// frame per camera so the HTTP API can serve it.
type FrameCache struct {
	mu     sync.RWMutex
	frames map[string]CachedFrame
}

// NewFrameCache creates an empty frame cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{frames: make(map[string]CachedFrame)}
}

// Paint stores the frame as the camera's latest.
func (f *FrameCache) Paint(cameraUniqueID string, frame image.Image) {
	f.mu.Lock()
	f.frames[cameraUniqueID] = CachedFrame{Image: frame, PaintedAt: time.Now()}
	f.mu.Unlock()
}

// Discard drops the camera's cached frame.
func (f *FrameCache) Discard(cameraUniqueID string) {
	f.mu.Lock()
	delete(f.frames, cameraUniqueID)
	f.mu.Unlock()
}

// Latest returns the camera's most recently painted frame.
func (f *FrameCache) Latest(cameraUniqueID string) (CachedFrame, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cf, ok := f.frames[cameraUniqueID]
	return cf, ok
}

var _ Renderer = (*FrameCache)(nil)
