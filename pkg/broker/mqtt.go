package broker

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttDisconnectQuiesce = 1000 // milliseconds
	mqttKeepAlive         = 60 * time.Second
)

/*
MQTTChannel implements Channel over an MQTT broker.

Reconnection is delegated to the paho client; subscriptions issued through
Subscribe are tracked and re-issued from the OnConnect handler, so they are
restored after every reconnect regardless of broker session state.
*/
type MQTTChannel struct {
	client pahomqtt.Client

	// subscriptions tracks active subscriptions for re-subscription on
	// (re)connect.
	subMu         sync.RWMutex
	subscriptions map[string]MessageHandler

	connMu    sync.RWMutex
	connected bool
}

func NewMQTT(opts Options) *MQTTChannel {
	c := &MQTTChannel{
		subscriptions: make(map[string]MessageHandler),
	}

	clientOpts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if opts.TLS {
		scheme = "ssl"
		clientOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOpts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port))

	clientOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	// Start fresh on every connect; subscriptions are restored by the
	// OnConnect handler instead of a persistent broker session.
	clientOpts.SetCleanSession(true)

	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(opts.ReconnectMin)
	clientOpts.SetMaxReconnectInterval(opts.ReconnectMax)
	clientOpts.SetConnectTimeout(mqttConnectTimeout)
	clientOpts.SetKeepAlive(mqttKeepAlive)

	clientOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	clientOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(clientOpts)
	return c
}

// Connect establishes the initial connection to the broker.
func (c *MQTTChannel) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// Disconnect closes the connection, allowing pending operations to drain.
func (c *MQTTChannel) Disconnect() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.client.Disconnect(mqttDisconnectQuiesce)
	log.Info("Disconnected from MQTT broker")
}

// Publish sends a message at QoS 0. Skipped with a debug log when the
// channel is disconnected; the message is dropped, never queued.
func (c *MQTTChannel) Publish(topic string, payload []byte) {
	if !c.Connected() {
		log.Debug("Cannot publish: not connected to MQTT broker")
		return
	}

	c.client.Publish(topic, 0, false, payload)
}

// Subscribe registers a handler for a topic pattern. The subscription is
// re-issued automatically on every reconnection.
func (c *MQTTChannel) Subscribe(pattern string, handler MessageHandler) error {
	c.subMu.Lock()
	c.subscriptions[pattern] = handler
	c.subMu.Unlock()

	if !c.Connected() {
		// Will be issued by the OnConnect handler
		return nil
	}

	token := c.client.Subscribe(pattern, 0, wrapHandler(handler))
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt subscribe %s: timeout", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", pattern, err)
	}

	log.With("pattern", pattern).Info("Subscribed")
	return nil
}

func (c *MQTTChannel) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *MQTTChannel) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	log.Info("Connected to MQTT broker")

	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for pattern, handler := range c.subscriptions {
		c.client.Subscribe(pattern, 0, wrapHandler(handler))
		log.With("pattern", pattern).Info("Subscribed")
	}
}

func (c *MQTTChannel) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	log.With("err", err).Warn("MQTT connection lost, will reconnect")
}

func wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
}
