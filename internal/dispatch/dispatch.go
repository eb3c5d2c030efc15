// Package dispatch turns user intents into independent units of work. Each
// intent spawns one goroutine that performs a boundary call and commits the
// outcome through the state store's single writer.
//
// Units of work for different intents, and for different cameras, run with no
// mutual exclusion between them. Duplicate-transport races are prevented in
// the session layer; two in-flight commands against the same camera resolve
// by last-response-commit-wins: whichever boundary call returns last decides
// the final membership. This is a pinned, tested rule, not an accident.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/device"
	"github.com/walnutpair/previewd/internal/core/session"
	"github.com/walnutpair/previewd/internal/core/state"
)

// Capturer triggers a backend-coordinated capture across all cameras.
type Capturer interface {
	CaptureAll(ctx context.Context) (backend.CaptureResult, error)
}

// Dispatcher fans user intents out into concurrent units of work.
type Dispatcher struct {
	ctx      context.Context
	store    *state.Store
	bus      *state.EventBus
	registry *device.Registry
	sessions *session.Manager
	capturer Capturer
	log      *slog.Logger

	width  int
	height int

	wg sync.WaitGroup
}

// New creates a dispatcher. ctx bounds every unit of work it spawns; stream
// width/height are passed through to preview starts.
func New(
	ctx context.Context,
	store *state.Store,
	bus *state.EventBus,
	registry *device.Registry,
	sessions *session.Manager,
	capturer Capturer,
	width, height int,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		store:    store,
		bus:      bus,
		registry: registry,
		sessions: sessions,
		capturer: capturer,
		width:    width,
		height:   height,
		log:      log,
	}
}

// Wait blocks until every in-flight unit of work has committed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// spawn runs one unit of work: loading on, message cleared, boundary work,
// flags always reset. Errors never escape; fn reports failure by setting the
// store message itself.
func (d *Dispatcher) spawn(intent string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.log.Debug("dispatching intent", "intent", intent)
		d.store.SetLoading(true)
		d.store.ClearMessage()
		defer d.store.SetLoading(false)
		fn(d.ctx)
	}()
}

// FetchDevices re-enumerates cameras. On failure the previously known list
// stays visible and only the message changes.
func (d *Dispatcher) FetchDevices() {
	d.spawn("fetch_devices", func(ctx context.Context) {
		cams, err := d.registry.Refresh(ctx)
		if err != nil {
			d.store.SetMessage("enumerate cameras: " + err.Error())
			return
		}
		pruned := d.store.ReplaceDevices(cams)
		for _, id := range pruned {
			if err := d.sessions.Stop(ctx, id); err != nil {
				d.log.Warn("failed to stop preview for vanished camera", "camera_unique_id", id, "error", err)
			}
		}
	})
}

// StartPreview opens a preview session for one camera.
func (d *Dispatcher) StartPreview(uniqueID string) {
	d.spawn("start_preview", func(ctx context.Context) {
		if err := d.sessions.Start(ctx, uniqueID, d.width, d.height); err != nil {
			d.store.SetMessage(err.Error())
		}
	})
}

// StopPreview closes the preview session for one camera.
func (d *Dispatcher) StopPreview(uniqueID string) {
	d.spawn("stop_preview", func(ctx context.Context) {
		if err := d.sessions.Stop(ctx, uniqueID); err != nil {
			d.store.SetMessage(err.Error())
		}
	})
}
