package align

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err error
}

func newMockToken(err error) *mockToken { return &mockToken{err: err} }

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Error() error                   { return t.err }

func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// mockMessageRecord captures a published message
type mockMessageRecord struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// mockClient implements mqtt.Client for testing
type mockClient struct {
	mu           sync.RWMutex
	connected    bool
	publishError error
	handlers     map[string]mqtt.MessageHandler
	published    []mockMessageRecord
}

func newMockClient() *mockClient {
	return &mockClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *mockClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *mockClient) setPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

// messages returns all published messages, optionally filtered by topic
func (c *mockClient) messages(topic string) []mockMessageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []mockMessageRecord
	for _, m := range c.published {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// deliver simulates the broker delivering payload on topic
func (c *mockClient) deliver(topic string, payload []byte) bool {
	c.mu.RLock()
	handler, ok := c.handlers[topic]
	c.mu.RUnlock()
	if !ok || handler == nil {
		return false
	}
	handler(c, &mockMessage{topic: topic, payload: payload})
	return true
}

func (c *mockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *mockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockClient) Connect() mqtt.Token {
	c.setConnected(true)
	return newMockToken(nil)
}

func (c *mockClient) Disconnect(uint) { c.setConnected(false) }

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return newMockToken(mqtt.ErrNotConnected)
	}
	if c.publishError != nil {
		return newMockToken(c.publishError)
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.published = append(c.published, mockMessageRecord{Topic: topic, Payload: data, QoS: qos, Retain: retained})
	return newMockToken(nil)
}

func (c *mockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return newMockToken(mqtt.ErrNotConnected)
	}
	c.handlers[topic] = callback
	return newMockToken(nil)
}

func (c *mockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic := range filters {
		c.handlers[topic] = callback
	}
	return newMockToken(nil)
}

func (c *mockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return newMockToken(nil)
}

func (c *mockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
