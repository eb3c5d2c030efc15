// Package mqtt bridges aggregate preview state to an MQTT broker so a
// station dashboard can watch device availability, active previews, and
// capture runs. It defines the Publisher interface and includes both a
// StubPublisher (no-op) and a BrokerPublisher that connects to a broker and
// forwards state updates from the EventBus. Commands are not accepted over
// MQTT; the backend owns the cameras.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/walnutpair/previewd/internal/core/device"
	"github.com/walnutpair/previewd/internal/core/state"
	"github.com/walnutpair/previewd/internal/dispatch"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends state to an MQTT broker.
type Publisher interface {
	// Start begins publishing events from the event bus.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds MQTT publisher configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	StationID   string
}

// StateReader provides read access to the aggregate state.
type StateReader interface {
	Snapshot() state.Aggregate
}

// ---------------------------------------------------------------------------
// BrokerPublisher
// ---------------------------------------------------------------------------

var _ Publisher = (*BrokerPublisher)(nil)

// BrokerPublisher publishes retained state topics and forwards updates from
// the EventBus.
type BrokerPublisher struct {
	cfg   Config
	store StateReader
	bus   *state.EventBus
	log   *slog.Logger

	client pahomqtt.Client

	unsub    func() // EventBus unsubscribe
	stopC    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBrokerPublisher creates an MQTT publisher for the given broker.
func NewBrokerPublisher(cfg Config, store StateReader, bus *state.EventBus, log *slog.Logger) *BrokerPublisher {
	return &BrokerPublisher{
		cfg:   cfg,
		store: store,
		bus:   bus,
		log:   log,
		stopC: make(chan struct{}),
	}
}

// Start connects to the MQTT broker, publishes the initial state snapshot,
// and starts listening on the EventBus for real-time updates.
func (p *BrokerPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("previewd-%s", p.cfg.StationID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing state")
			p.publish(availTopic, "online", true)
			p.publishFullState()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event loop.
func (p *BrokerPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	p.stopOnce.Do(func() { close(p.stopC) })

	if p.unsub != nil {
		p.unsub()
	}

	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

func (p *BrokerPublisher) publishFullState() {
	snap := p.store.Snapshot()
	p.publishJSON(p.topic("devices"), devicesPayload(snap.AvailableCameras))
	p.publishJSON(p.topic("previews"), previewsPayload(snap))
}

func (p *BrokerPublisher) eventLoop(ch <-chan state.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *BrokerPublisher) handleEvent(evt state.Event) {
	switch evt.Type {
	case state.EventDevicesUpdate:
		cams, ok := evt.Data.([]device.Camera)
		if !ok {
			p.log.Warn("unexpected data type for devices_update")
			return
		}
		p.publishJSON(p.topic("devices"), devicesPayload(cams))
		p.publishJSON(p.topic("previews"), previewsPayload(p.store.Snapshot()))

	case state.EventPreviewStarted, state.EventPreviewStopped:
		p.publishJSON(p.topic("previews"), previewsPayload(p.store.Snapshot()))

	case state.EventCaptureComplete:
		cc, ok := evt.Data.(dispatch.CaptureCompleted)
		if !ok {
			p.log.Warn("unexpected data type for capture_complete")
			return
		}
		p.publishJSON(p.topic("capture/last"), capturePayload(cc))

	case state.EventMessage:
		msg, ok := evt.Data.(string)
		if !ok || msg == "" {
			return
		}
		p.publish(p.topic("message"), msg, false)
	}
}

// ---------------------------------------------------------------------------
// Payload builders (separated so they are testable without a broker)
// ---------------------------------------------------------------------------

func devicesPayload(cams []device.Camera) map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(cams))
	for _, c := range cams {
		entry := map[string]interface{}{
			"unique_id": c.UniqueID,
			"index":     c.Index,
		}
		if c.Name != "" {
			entry["name"] = c.Name
		}
		list = append(list, entry)
	}
	return map[string]interface{}{
		"count":   len(cams),
		"cameras": list,
	}
}

func previewsPayload(snap state.Aggregate) map[string]interface{} {
	return map[string]interface{}{
		"active": snap.ActivePreviewIDs(),
		"count":  len(snap.ActivePreviews),
	}
}

func capturePayload(cc dispatch.CaptureCompleted) map[string]interface{} {
	return map[string]interface{}{
		"run_id":         cc.RunID,
		"captured_count": cc.Result.CapturedCount,
		"total_cameras":  cc.Result.TotalCameras,
		"errors":         cc.Result.Errors,
		"saved_paths":    cc.Result.SavedPaths,
		"summary":        cc.Summary,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{station_id}/{suffix}.
func (p *BrokerPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.StationID, suffix)
}

func (p *BrokerPublisher) publishJSON(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal mqtt payload", "topic", topic, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *BrokerPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}
