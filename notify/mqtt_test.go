package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; methods not overridden panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	messages     []published
	err          error
	hang         bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.err, !c.hang)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func sampleEvent() Event {
	return Event{
		RunID: "run-1", Kind: EventSucceeded, Job: "Town01_ClearNoon_normal",
		Town: "Town01", Weather: "ClearNoon", Behavior: "normal", NavigationType: "straight",
		Steps: 50, Records: 5,
	}
}

func TestMQTTPublisher_TopicAndPayload(t *testing.T) {
	// GIVEN a publisher with a custom prefix
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "lab", QoS: 1})

	// WHEN an event is published
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	// THEN the topic encodes the job identity and the payload is the event
	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "lab/Town01/ClearNoon/normal/straight/succeeded", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	var got Event
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 5, got.Records)
	assert.False(t, got.Time.IsZero(), "publish stamps the event time")
}

func TestMQTTPublisher_BrokerError(t *testing.T) {
	client := &fakeClient{err: errors.New("not authorized")}
	p := newMQTTPublisher(client, MQTTConfig{})

	err := p.Publish(context.Background(), sampleEvent())

	assert.ErrorContains(t, err, "not authorized")
}

func TestMQTTPublisher_Timeout(t *testing.T) {
	client := &fakeClient{hang: true}
	p := newMQTTPublisher(client, MQTTConfig{Timeout: 20 * time.Millisecond})

	err := p.Publish(context.Background(), sampleEvent())

	assert.ErrorContains(t, err, "timed out")
}

func TestMQTTPublisher_ContextCanceled(t *testing.T) {
	client := &fakeClient{hang: true}
	p := newMQTTPublisher(client, MQTTConfig{Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, sampleEvent())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{})

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestNewMQTTPublisher_RequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{})
	assert.Error(t, err)
}
