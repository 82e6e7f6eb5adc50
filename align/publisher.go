package align

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// TransformMessage is the payload published on <prefix>/transform.
type TransformMessage struct {
	SessionID   string  `json:"sessionId"`
	Scale       float64 `json:"scale"`
	Yaw         float64 `json:"yawRadians"`
	YawDegrees  float64 `json:"yawDegrees"`
	Translation Vec3    `json:"translation"`
	Status      string  `json:"status"`
	Timestamp   int64   `json:"timestamp"`
}

// Publisher publishes controller status and applied transforms to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *TransformMessage
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewPublisher creates a new publisher. The prefix comes from MQTT_PUBLISH_PREFIX,
// then prefix, then DefaultPublishPrefix.
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget
		retain:        true, // late subscribers get the current alignment
		logger:        logger.With(zap.String("component", "publisher")),
	}
}

// Observe is a controller Observer. Every event republishes the status; applied
// events also publish the transform.
func (p *Publisher) Observe(ev Event) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	if err := p.PublishStatus(ev.Snapshot); err != nil {
		p.logger.Warn("publishing status", zap.Error(err))
	}
	if ev.Kind == EventApplied && ev.Snapshot.Transform != nil {
		if err := p.PublishTransform(ev.Snapshot.SessionID, *ev.Snapshot.Transform); err != nil {
			p.logger.Warn("publishing transform", zap.Error(err))
		}
	}
}

// PublishStatus publishes a controller snapshot to <prefix>/status
func (p *Publisher) PublishStatus(s Snapshot) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	return p.publish(p.StatusTopic(), s)
}

// PublishTransform publishes the transform output to <prefix>/transform
func (p *Publisher) PublishTransform(sessionID string, t Transform2D) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &TransformMessage{
		SessionID:   sessionID,
		Scale:       t.Scale,
		Yaw:         t.Yaw,
		YawDegrees:  t.YawDegrees(),
		Translation: t.Translation,
		Status:      t.String(),
		Timestamp:   time.Now().Unix(),
	}

	if err := p.publish(p.TransformTopic(), msg); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	p.logger.Info("published transform", zap.String("status", msg.Status))
	return nil
}

func (p *Publisher) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastTransform returns a copy of the last published transform message
func (p *Publisher) LastTransform() (TransformMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return TransformMessage{}, false
	}
	return *p.last, true
}

// StatusTopic returns the status topic
func (p *Publisher) StatusTopic() string {
	return p.publishPrefix + "/status"
}

// TransformTopic returns the transform topic
func (p *Publisher) TransformTopic() string {
	return p.publishPrefix + "/transform"
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
