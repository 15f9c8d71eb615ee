package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/infra/logger"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// Streamer hands out buffered event subscriptions.
type Streamer interface {
	Stream(buffer int, types ...string) (<-chan eventbus.Event, func())
}

// Message is the envelope published for every event.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Relay publishes bus events to the broker.
type Relay struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// NewRelay connects to the MQTT broker.
func NewRelay(cfg Config) (*Relay, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_relay")
	r := &Relay{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	statusTopic := cfg.StatusTopic()
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Publish(statusTopic, 1, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("status publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	r.cli = c
	return r, nil
}

// EventTopic is the per-type topic of an event.
func (r *Relay) EventTopic(eventType string) string {
	return fmt.Sprintf("%s/events/%s", r.prefix, eventType)
}

// CourierTopic is the per-courier topic.
func (r *Relay) CourierTopic(courierID string) string {
	return fmt.Sprintf("%s/couriers/%s/events", r.prefix, courierID)
}

// courierOf extracts the courier an event concerns, if any.
func courierOf(ev eventbus.Event) string {
	switch e := ev.Data.(type) {
	case events.AssignmentEvent:
		return e.CourierID
	case events.OrderEvent:
		return e.CourierID
	case events.CourierEvent:
		if e.Courier != nil {
			return e.Courier.ID
		}
	}
	return ""
}

// PublishEvent sends ev to its type topic and, when it concerns a courier,
// to the courier topic as well.
func (r *Relay) PublishEvent(ev eventbus.Event) error {
	payload, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	if err := r.publish(r.EventTopic(ev.Type), payload); err != nil {
		return err
	}
	if id := courierOf(ev); id != "" {
		return r.publish(r.CourierTopic(id), payload)
	}
	return nil
}

func (r *Relay) publish(topic string, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		token := r.cli.Publish(topic, r.qos, r.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			r.log.Debugf("published to %s", topic)
			return nil
		}
		r.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < r.maxRetries {
			time.Sleep(r.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Start forwards every event type listed by events.Types until ctx is done.
// The returned channel is closed once forwarding has stopped.
func (r *Relay) Start(ctx context.Context, bus Streamer) <-chan struct{} {
	done := make(chan struct{})
	sub, cancel := bus.Stream(256, events.Types()...)
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := r.PublishEvent(ev); err != nil {
					r.log.Errorw("relay event failed", map[string]any{"type": ev.Type, "error": err})
				}
			}
		}
	}()
	return done
}

// Disconnect announces the relay offline and closes the MQTT connection.
func (r *Relay) Disconnect() {
	if r.cli != nil && r.cli.IsConnected() {
		if token := r.cli.Publish(r.prefix+"/status", 1, true, "offline"); token.Wait() && token.Error() != nil {
			r.log.Warnf("status publish error: %v", token.Error())
		}
		r.cli.Disconnect(250)
	}
}
