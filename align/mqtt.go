package align

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTClient feeds hit-test results and operator commands from MQTT topics into a
// Controller.
type MQTTClient struct {
	client       mqtt.Client
	controller   *Controller
	hitTopic     string
	commandTopic string
	logger       *zap.Logger
	isConnected  bool
	mu           sync.RWMutex
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil.
func InitMQTT(ctx context.Context, config *Config, controller *Controller, logger *zap.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		logger.Info("MQTT disabled: no broker configured")
		return nil, nil
	}

	if config == nil || controller == nil {
		return nil, fmt.Errorf("MQTT enabled but no controller configuration provided")
	}

	c := &MQTTClient{
		controller:   controller,
		hitTopic:     config.MQTT.GetHitTopic(),
		commandTopic: config.MQTT.GetCommandTopic(),
		logger:       logger.With(zap.String("component", "mqtt")),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Hit updates must be applied in arrival order: last write wins.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry(ctx)

	return c, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
// until it succeeds or ctx is done.
func (c *MQTTClient) connectWithRetry(ctx context.Context) {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		c.logger.Info("connecting to MQTT broker")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.logger.Info("connected to MQTT broker")
				c.setConnected(true)
				return
			}
			c.logger.Warn("MQTT connection failed", zap.Error(token.Error()))
		} else {
			c.logger.Warn("MQTT connection timeout")
		}

		c.logger.Info("retrying MQTT connection", zap.Duration("delay", retryDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the hit and command topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected, subscribing")
	c.setConnected(true)

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{c.hitTopic, c.handleHit},
		{c.commandTopic, c.handleCommand},
	}
	for _, s := range subs {
		token := client.Subscribe(s.topic, 0, s.handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.logger.Error("subscribe failed", zap.String("topic", s.topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("subscribed", zap.String("topic", s.topic))
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("MQTT connection interrupted, auto-reconnect will retry", zap.Error(err))
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.logger.Info("MQTT reconnecting")
}

// handleHit overwrites the controller's latest hit. Malformed payloads are dropped and
// leave the previous hit in place.
func (c *MQTTClient) handleHit(client mqtt.Client, msg mqtt.Message) {
	hit, err := ParseHit(msg.Payload())
	if err != nil {
		c.logger.Warn("dropping hit payload", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	c.controller.UpdateHit(hit)
}

// handleCommand runs a Set or Reset command. Failures are reported through the
// controller status and never stop the subscription.
func (c *MQTTClient) handleCommand(client mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		c.logger.Warn("dropping command payload", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if _, err := cmd.Execute(c.controller); err != nil {
		c.logger.Info("command rejected",
			zap.String("command", string(cmd.Kind)),
			zap.String("target", string(cmd.Target)),
			zap.Error(err))
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// Topics returns the subscribed hit and command topics
func (c *MQTTClient) Topics() (hit, command string) {
	return c.hitTopic, c.commandTopic
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, controller *Controller) *MQTTClient {
	return &MQTTClient{
		client:       client,
		controller:   controller,
		hitTopic:     config.MQTT.GetHitTopic(),
		commandTopic: config.MQTT.GetCommandTopic(),
		logger:       zap.NewNop(),
	}
}
