package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/core/device"
	"github.com/walnutpair/previewd/internal/core/session"
	"github.com/walnutpair/previewd/internal/core/state"
	"github.com/walnutpair/previewd/internal/core/transport"
	"github.com/walnutpair/previewd/internal/dispatch"
	"github.com/walnutpair/previewd/internal/httpapi"
	"github.com/walnutpair/previewd/internal/mqtt"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the preview daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(deps)
		},
	}
}

func runServe(deps *Dependencies) error {
	cfg := deps.Config
	log := deps.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := state.NewEventBus(log)
	store := state.NewStore(bus, log)

	client := backend.NewClient(cfg.Backend.BaseURL, log)
	registry := device.NewRegistry(client, log)
	dialer := transport.NewStreamDialer(cfg.Backend.BaseURL, log)
	frames := session.NewFrameCache()
	sessions := session.NewManager(client, dialer, store, frames, log)

	dispatcher := dispatch.New(ctx, store, bus, registry, sessions, client,
		cfg.Stream.Width, cfg.Stream.Height, log)

	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewBrokerPublisher(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			StationID:   cfg.MQTT.StationID,
		}, store, bus, log)
	} else {
		publisher = mqtt.NewStubPublisher(log)
	}
	if err := publisher.Start(ctx); err != nil {
		return err
	}

	api := httpapi.NewServer(store, dispatcher, frames, cfg.HTTP.CORSAll, log)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http api listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Initial enumeration happens in the background so an unreachable
	// backend delays nothing; the failure lands in the aggregate state.
	dispatcher.FetchDevices()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		stop()
		log.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	sessions.Close(shutdownCtx)
	dispatcher.Wait()
	if err := publisher.Stop(shutdownCtx); err != nil {
		log.Error("mqtt stop failed", "error", err)
	}
	store.Close()

	log.Info("shutdown complete")
	return nil
}
