package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/kabili207/meshcore-net-bridge/pkg/backoff"
)

/*
NATSChannel implements Channel over a NATS server.

Topics use the same slash-separated scheme as the MQTT backend and are
mapped to NATS subjects on the way out: "/" becomes "." and the "+"
single-level wildcard becomes "*". The nats client keeps subscriptions
alive across reconnections itself, so no re-subscription tracking is
needed here.
*/
type NATSChannel struct {
	url  string
	opts []nats.Option
	conn *nats.Conn
}

func NewNATS(opts Options) *NATSChannel {
	natsOpts := []nats.Option{
		nats.Name(opts.ClientID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			return backoff.For(opts.ReconnectMin, opts.ReconnectMax, attempts)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.With("err", err).Warn("NATS connection lost, will reconnect")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("Reconnected to NATS server")
		}),
	}

	if opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}

	scheme := "nats"
	if opts.TLS {
		scheme = "tls"
	}

	return &NATSChannel{
		url:  fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port),
		opts: natsOpts,
	}
}

func (c *NATSChannel) Connect() error {
	conn, err := nats.Connect(c.url, c.opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	c.conn = conn
	log.With("url", c.url).Info("Connected to NATS server")
	return nil
}

func (c *NATSChannel) Disconnect() {
	if c.conn == nil {
		return
	}

	c.conn.Close()
	c.conn = nil
	log.Info("Disconnected from NATS server")
}

func (c *NATSChannel) Publish(topic string, payload []byte) {
	if !c.Connected() {
		log.Debug("Cannot publish: not connected to NATS server")
		return
	}

	if err := c.conn.Publish(topicToSubject(topic), payload); err != nil {
		log.With("err", err).Warn("NATS publish failed")
	}
}

func (c *NATSChannel) Subscribe(pattern string, handler MessageHandler) error {
	if c.conn == nil {
		return fmt.Errorf("nats subscribe %s: not connected", pattern)
	}

	_, err := c.conn.Subscribe(topicToSubject(pattern), func(msg *nats.Msg) {
		handler(subjectToTopic(msg.Subject), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", pattern, err)
	}

	log.With("pattern", pattern).Info("Subscribed")
	return nil
}

func (c *NATSChannel) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func topicToSubject(topic string) string {
	subject := strings.ReplaceAll(topic, "/", ".")
	return strings.ReplaceAll(subject, "+", "*")
}

func subjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
