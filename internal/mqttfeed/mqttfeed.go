// Package mqttfeed listens to Frigate's MQTT event stream and turns event
// starts and ends into poll triggers. It never touches polling state itself.
package mqttfeed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"gosrc.io/mqtt"

	"github.com/five82/vigil/internal/logging"
	"github.com/five82/vigil/internal/metrics"
)

// Message is the payload Frigate publishes on frigate/events.
type Message struct {
	Type   string       `json:"type"`
	Before *EventRecord `json:"before"`
	After  *EventRecord `json:"after"`
}

// EventRecord is the subset of the tracked object state vigil reads.
type EventRecord struct {
	ID           string   `json:"id"`
	Camera       string   `json:"camera"`
	Label        string   `json:"label"`
	StartTime    float64  `json:"start_time"`
	EndTime      *float64 `json:"end_time"`
	CurrentZones []string `json:"current_zones"`
	EnteredZones []string `json:"entered_zones"`
}

// Message types published by Frigate.
const (
	TypeNew    = "new"
	TypeUpdate = "update"
	TypeEnd    = "end"
)

// Decode parses one MQTT payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("decode mqtt event: %w", err)
	}
	m.Type = strings.ToLower(strings.TrimSpace(m.Type))
	return m, nil
}

// Relevant reports whether the message changes the in-progress set. Updates
// to an ongoing event do not.
func (m Message) Relevant() bool {
	return m.Type == TypeNew || m.Type == TypeEnd
}

// EventID returns the id from the newest record present.
func (m Message) EventID() string {
	if m.After != nil && m.After.ID != "" {
		return m.After.ID
	}
	if m.Before != nil {
		return m.Before.ID
	}
	return ""
}

// messageBuffer absorbs bursts while a trigger is being enqueued.
const messageBuffer = 16

// Config selects the broker and topic.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
}

// Feed subscribes to the events topic and calls notify for every relevant
// message.
type Feed struct {
	cfg    Config
	notify func(Message)
}

// New returns a feed. notify must not block for long; the poller's Trigger
// fits.
func New(cfg Config, notify func(Message)) *Feed {
	if cfg.Topic == "" {
		cfg.Topic = "frigate/events"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "vigil"
	}
	return &Feed{cfg: cfg, notify: notify}
}

// Run connects, subscribes, and dispatches until ctx is cancelled. The client
// manager reconnects on its own after broker outages. The library closes the
// message channel when the client stops.
func (f *Feed) Run(ctx context.Context) error {
	if strings.TrimSpace(f.cfg.Broker) == "" {
		return fmt.Errorf("mqtt broker not configured")
	}
	client := mqtt.NewClient(f.cfg.Broker)
	client.ClientID = f.cfg.ClientID

	messages := make(chan mqtt.Message, messageBuffer)
	client.Messages = messages

	log := logging.With().Str("broker", f.cfg.Broker).Str("topic", f.cfg.Topic).Logger()
	connected := make(chan struct{})
	var once sync.Once
	postConnect := func(c *mqtt.Client) {
		c.Subscribe(mqtt.Topic{Name: f.cfg.Topic, QOS: 0})
		log.Info().Msg("mqtt subscribed")
		once.Do(func() { close(connected) })
	}
	cm := mqtt.NewClientManager(client, postConnect)
	// Start retries until the broker answers and must not hold up shutdown.
	go cm.Start()

	f.dispatch(ctx, messages)

	// Stop is only safe on a client that has connected at least once.
	select {
	case <-connected:
		drainUntil(messages, cm.Stop)
	default:
		log.Warn().Msg("mqtt broker never answered; abandoning connection attempts")
	}
	return nil
}

// dispatch handles messages until ctx is done or the channel closes.
func (f *Feed) dispatch(ctx context.Context, messages <-chan mqtt.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			f.handle(m.Payload)
		}
	}
}

// drainUntil discards messages while stop runs, so a client goroutine blocked
// on a send can observe the shutdown.
func drainUntil(messages <-chan mqtt.Message, stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stop()
	}()
	for {
		select {
		case <-done:
			return
		case _, ok := <-messages:
			if !ok {
				<-done
				return
			}
		}
	}
}

func (f *Feed) handle(payload []byte) {
	m, err := Decode(payload)
	if err != nil {
		metrics.MQTTMessages.WithLabelValues("invalid").Inc()
		logging.Debug().Err(err).Msg("ignoring mqtt payload")
		return
	}
	if !m.Relevant() {
		metrics.MQTTMessages.WithLabelValues("ignored").Inc()
		return
	}
	metrics.MQTTMessages.WithLabelValues(m.Type).Inc()
	logging.Debug().Str("type", m.Type).Str("event", m.EventID()).Msg("mqtt event")
	if f.notify != nil {
		f.notify(m)
	}
}
