package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/grow-controller/internal/actuator"
)

var testTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func lightEvent(pct int) actuator.Event {
	return actuator.Event{
		Time:          testTime,
		Actuator:      actuator.Light,
		BrightnessPct: pct,
		Trigger:       actuator.TriggerSchedule,
		RuleID:        "r1",
	}
}

func pumpEvent(on bool, trigger actuator.Trigger) actuator.Event {
	return actuator.Event{Time: testTime, Actuator: actuator.Pump, On: on, Trigger: trigger}
}

func TestFormatPayloadLightExactJSON(t *testing.T) {
	payload, err := FormatPayload(lightEvent(40))
	require.NoError(t, err)
	assert.JSONEq(t, `{"actuator":{
		"timestamp":"2026-06-01T09:00:00Z",
		"name":"light",
		"brightness_pct":40,
		"trigger":"schedule",
		"rule_id":"r1"}}`, string(payload))
}

func TestFormatPayloadLightZeroBrightnessPresent(t *testing.T) {
	payload, err := FormatPayload(lightEvent(0))
	require.NoError(t, err)

	var parsed Payload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	require.NotNil(t, parsed.Actuator.BrightnessPct)
	assert.Equal(t, 0, *parsed.Actuator.BrightnessPct)
	assert.Nil(t, parsed.Actuator.On)
}

func TestFormatPayloadPump(t *testing.T) {
	tests := []struct {
		name  string
		event actuator.Event
		want  string
	}{
		{"on", pumpEvent(true, actuator.TriggerSchedule),
			`{"actuator":{"timestamp":"2026-06-01T09:00:00Z","name":"pump","on":true,"trigger":"schedule"}}`},
		{"off", pumpEvent(false, actuator.TriggerSchedule),
			`{"actuator":{"timestamp":"2026-06-01T09:00:00Z","name":"pump","on":false,"trigger":"schedule"}}`},
		{"manual", pumpEvent(true, actuator.TriggerManual),
			`{"actuator":{"timestamp":"2026-06-01T09:00:00Z","name":"pump","on":true,"trigger":"manual"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatPayload(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(payload))
		})
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	ev := lightEvent(10)
	ev.Time = time.Date(2026, 6, 1, 19, 0, 0, 0, loc)

	payload, err := FormatPayload(ev)
	require.NoError(t, err)

	var parsed Payload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, "2026-06-01T09:00:00Z", parsed.Actuator.Timestamp)
}

func TestTopicsFor(t *testing.T) {
	assert.Equal(t, Topics{
		Events: "home/grow/controller/actuators/events",
		System: "home/grow/controller/system",
	}, TopicsFor(""))

	assert.Equal(t, Topics{
		Events: "greenhouse/a/actuators/events",
		System: "greenhouse/a/system",
	}, TopicsFor("greenhouse/a/"))
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: testTime, Event: "SHUTDOWN", Reason: "SIGTERM"})
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-06-01T09:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`, string(payload))
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: testTime, Event: "RECONNECTED"})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "reason")
}

func TestFormatSystemPayloadRawPayload(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestWillPayloadFormat(t *testing.T) {
	var parsed SystemPayload
	require.NoError(t, json.Unmarshal(willPayload(), &parsed))
	assert.Equal(t, "OFFLINE", parsed.System.Event)
	assert.Equal(t, "connection lost", parsed.System.Reason)
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()
	require.NoError(t, pub.PublishActuator(lightEvent(40)))
	require.NoError(t, pub.PublishActuator(pumpEvent(true, actuator.TriggerSchedule)))

	events := pub.ActuatorEvents()
	require.Len(t, events, 2)
	assert.Equal(t, actuator.Light, events[0].Actuator)
	assert.Equal(t, actuator.Pump, events[1].Actuator)
	require.Len(t, pub.Payloads, 2)
	assert.Contains(t, string(pub.Payloads[0]), `"brightness_pct":40`)
}

func TestFakePublisherErrors(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	pub.PublishSystemError = errors.New("broker down")

	assert.Error(t, pub.PublishActuator(lightEvent(1)))
	assert.Error(t, pub.PublishSystem(SystemEvent{Event: "STARTUP"}))
	assert.Empty(t, pub.Events)
	assert.Empty(t, pub.SystemEvents)
}

func TestFakePublisherSystemAndRetained(t *testing.T) {
	pub := NewFakePublisher()
	require.NoError(t, pub.PublishSystem(SystemEvent{Timestamp: testTime, Event: "STARTUP", Retained: true}))
	require.Len(t, pub.SystemEvents, 1)
	assert.True(t, pub.SystemEvents[0].Retained)
	assert.Contains(t, string(pub.SystemPayloads[0]), "STARTUP")
}

func TestFakePublisherResetAndClose(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true
	require.NoError(t, pub.PublishActuator(lightEvent(5)))
	require.NoError(t, pub.Close())
	assert.True(t, pub.Closed)
	assert.True(t, pub.IsConnected())

	pub.Reset()
	assert.Empty(t, pub.Events)
	assert.False(t, pub.Closed)
	assert.False(t, pub.IsConnected())

	require.NoError(t, pub.PublishActuator(lightEvent(6)))
	assert.Len(t, pub.Events, 1)
}

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sent struct {
	topic    string
	retained bool
	payload  string
}

// fakeClient implements the parts of paho.Client that RealPublisher uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	open         bool
	publishErr   error
	sent         []sent
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return fakeToken{err: c.publishErr}
	}
	c.sent = append(c.sent, sent{topic: topic, retained: retained, payload: string(payload.([]byte))})
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) messages() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

func newTestPublisher(client *fakeClient, size int) *RealPublisher {
	return newPublisher(client, RealConfig{
		Topics:     TopicsFor("grow"),
		BufferSize: size,
		Now:        func() time.Time { return testTime },
	})
}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(client, 10)

	require.NoError(t, p.PublishActuator(lightEvent(40)))
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: testTime, Event: "STARTUP", Retained: true}))

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "grow/actuators/events", msgs[0].topic)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, "grow/system", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	assert.Zero(t, p.Pending())
}

func TestRealPublisherQueuesWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client, 10)

	require.NoError(t, p.PublishActuator(lightEvent(10)))
	require.NoError(t, p.PublishActuator(lightEvent(20)))
	assert.Empty(t, client.messages())
	assert.Equal(t, 2, p.Pending())

	// First connection replays without announcing a reconnect.
	client.setOpen(true)
	p.onConnect()

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].payload, `"brightness_pct":10`)
	assert.Contains(t, msgs[1].payload, `"brightness_pct":20`)
	assert.Zero(t, p.Pending())
}

func TestRealPublisherAnnouncesReconnect(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(client, 10)
	p.onConnect()
	assert.Empty(t, client.messages())

	client.setOpen(false)
	require.NoError(t, p.PublishActuator(pumpEvent(true, actuator.TriggerSchedule)))

	client.setOpen(true)
	p.onConnect()

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "grow/actuators/events", msgs[0].topic)
	assert.Equal(t, "grow/system", msgs[1].topic)
	assert.JSONEq(t, `{"system":{"timestamp":"2026-06-01T09:00:00Z","event":"RECONNECTED"}}`, msgs[1].payload)
}

func TestRealPublisherFailedPublishIsQueued(t *testing.T) {
	client := &fakeClient{open: true, publishErr: errors.New("not acked")}
	p := newTestPublisher(client, 10)

	err := p.PublishActuator(lightEvent(30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grow/actuators/events")
	assert.Equal(t, 1, p.Pending())

	client.mu.Lock()
	client.publishErr = nil
	client.mu.Unlock()
	p.onConnect()
	assert.Len(t, client.messages(), 1)
	assert.Zero(t, p.Pending())
}

func TestRealPublisherOverflowKeepsNewest(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client, 2)
	for _, pct := range []int{1, 2, 3} {
		require.NoError(t, p.PublishActuator(lightEvent(pct)))
	}
	assert.Equal(t, 2, p.Pending())

	client.setOpen(true)
	p.onConnect()
	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].payload, `"brightness_pct":2`)
	assert.Contains(t, msgs[1].payload, `"brightness_pct":3`)
}

func TestRealPublisherClose(t *testing.T) {
	client := &fakeClient{open: true}
	p := newTestPublisher(client, 1)
	assert.True(t, p.IsConnected())
	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestPublishersImplementInterfaces(t *testing.T) {
	var _ Publisher = (*RealPublisher)(nil)
	var _ Publisher = (*FakePublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*FakePublisher)(nil)
}
