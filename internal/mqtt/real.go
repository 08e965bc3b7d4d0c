package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/actuator"
)

// DefaultBufferSize is how many messages are kept while disconnected.
const DefaultBufferSize = 256

// RealConfig configures the broker connection.
type RealConfig struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
	// Now timestamps RECONNECTED events. Defaults to time.Now.
	Now func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are queued and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	now    func() time.Time

	mu        sync.Mutex
	outbox    *outbox
	connected bool // a connection has been established at least once
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It does not wait for the broker.
func NewRealPublisher(cfg RealConfig) *RealPublisher {
	p := newPublisher(nil, cfg)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, willPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func newPublisher(client paho.Client, cfg RealConfig) *RealPublisher {
	if cfg.Topics == (Topics{}) {
		cfg.Topics = TopicsFor("")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RealPublisher{
		client: client,
		topics: cfg.Topics,
		now:    cfg.Now,
		outbox: newOutbox(cfg.BufferSize),
	}
}

// PublishActuator sends an actuator event to the broker.
func (p *RealPublisher) PublishActuator(event actuator.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: command history matters to subscribers.
	return p.publish(outMsg{topic: p.topics.Events, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(outMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of queued messages.
func (p *RealPublisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(m outMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.outbox.add(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.outbox.add(m)
		return err
	}
	return nil
}

// send must be called with mu held.
func (p *RealPublisher) send(m outMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// onConnect replays queued messages and, on a reconnect, announces it.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs, dropped := p.outbox.take()
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("mqtt outbox overflowed while disconnected")
	}
	for i, m := range msgs {
		if err := p.send(m); err != nil {
			log.Warn().Err(err).Int("remaining", len(msgs)-i).Msg("mqtt replay failed")
			for _, rest := range msgs[i:] {
				p.outbox.add(rest)
			}
			break
		}
	}
	if len(msgs) > 0 {
		log.Info().Int("messages", len(msgs)).Msg("mqtt replayed queued messages")
	}

	if p.connected {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.send(outMsg{topic: p.topics.System, payload: payload, qos: 1}); err != nil {
			log.Warn().Err(err).Msg("publish reconnected event failed")
		}
	}
	p.connected = true
	log.Info().Msg("mqtt connected")
}
