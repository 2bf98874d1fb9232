package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
)

// NATSBus publishes verdicts for the UI and subscribes to remote sensor
// events
type NATSBus struct {
	nc             *nats.Conn
	metrics        *Metrics
	eventSubject   string
	verdictSubject string
	sub            *nats.Subscription
}

// ConnectNATS dials the server; the connection reconnects on its own
func ConnectNATS(url, eventSubject, verdictSubject string, metrics *Metrics) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("aegis"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	log.Info().Str("url", url).Str("events", eventSubject).Str("verdicts", verdictSubject).Msg("connected to NATS")
	return &NATSBus{
		nc:             nc,
		metrics:        metrics,
		eventSubject:   eventSubject,
		verdictSubject: verdictSubject,
	}, nil
}

// Notify publishes the detection as JSON. Publish only buffers, so this
// never waits on the network.
func (b *NATSBus) Notify(det domain.Detection) {
	data, err := json.Marshal(det)
	if err != nil {
		log.Error().Err(err).Str("id", det.ID).Msg("failed to encode detection")
		b.metrics.ObserveNotification("nats", false)
		return
	}
	if err := b.nc.Publish(b.verdictSubject, data); err != nil {
		log.Warn().Err(err).Str("id", det.ID).Msg("failed to publish detection")
		b.metrics.ObserveNotification("nats", false)
		return
	}
	b.metrics.ObserveNotification("nats", true)
}

// Subscribe forwards every decodable event on the event subject to sink
func (b *NATSBus) Subscribe(sink EventSink) error {
	sub, err := b.nc.Subscribe(b.eventSubject, func(msg *nats.Msg) {
		ev, err := DecodeThreatEvent(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding malformed sensor event")
			return
		}
		b.metrics.ObserveSensorEvent("nats", sink.Ingest(ev))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.eventSubject, err)
	}
	b.sub = sub
	return nil
}

// Close drains the subscription and closes the connection
func (b *NATSBus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// DecodeThreatEvent parses the sensor wire format. Events without a
// timestamp are stamped on arrival.
func DecodeThreatEvent(data []byte) (domain.ThreatEvent, error) {
	var ev domain.ThreatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.ThreatEvent{}, fmt.Errorf("failed to decode threat event: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev, nil
}
