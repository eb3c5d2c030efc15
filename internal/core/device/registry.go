package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Lister enumerates camera devices from the backend.
type Lister interface {
	ListCameras(ctx context.Context) ([]Camera, error)
}

// Registry keeps the last successful enumeration result.
//
// Enumeration order is display order. When a refresh fails the previously
// known list is kept: stale-but-available data beats an empty device grid.
type Registry struct {
	lister Lister
	log    *slog.Logger

	mu      sync.RWMutex
	cameras []Camera
}

// NewRegistry creates a registry backed by the given lister.
func NewRegistry(lister Lister, log *slog.Logger) *Registry {
	return &Registry{lister: lister, log: log}
}

// Refresh re-enumerates devices through the backend and replaces the known
// list wholesale on success. On failure the previous list is left untouched
// and the error is returned.
func (r *Registry) Refresh(ctx context.Context) ([]Camera, error) {
	cams, err := r.lister.ListCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}

	// The backend guarantees pairwise-distinct unique IDs within one
	// enumeration; enforce it here anyway. First occurrence wins.
	seen := make(map[string]struct{}, len(cams))
	deduped := cams[:0]
	for _, c := range cams {
		if _, dup := seen[c.UniqueID]; dup {
			r.log.Warn("duplicate unique_id in enumeration, dropping", "unique_id", c.UniqueID, "index", c.Index)
			continue
		}
		seen[c.UniqueID] = struct{}{}
		deduped = append(deduped, c)
	}

	r.mu.Lock()
	r.cameras = deduped
	r.mu.Unlock()

	r.log.Info("device enumeration complete", "count", len(deduped))
	return r.Cameras(), nil
}

// Cameras returns a copy of the last known device list in enumeration order.
func (r *Registry) Cameras() []Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Camera, len(r.cameras))
	copy(out, r.cameras)
	return out
}

// ByUniqueID looks up a known camera by its stable identifier.
func (r *Registry) ByUniqueID(id string) (Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cameras {
		if c.UniqueID == id {
			return c, true
		}
	}
	return Camera{}, false
}
