package broker

import (
	"time"
)

// MessageHandler is invoked on the broker client's own callback goroutine
// for every message arriving on a subscribed topic. Handlers should not
// block for extended periods.
type MessageHandler func(topic string, payload []byte)

/*
Channel is the contract the bridge requires from a pub/sub broker client.

Implementations must reconnect automatically with bounded backoff after a
connection loss and must re-issue active subscriptions on every reconnection,
since subscriptions are not assumed to survive a broker-side session reset.

Publish is fire-and-forget: implementations report nothing for messages lost
while disconnected.
*/
type Channel interface {
	Connect() error
	Disconnect()
	Publish(topic string, payload []byte)
	Subscribe(pattern string, handler MessageHandler) error
	Connected() bool
}

// Options carries the connection settings common to all channel backends.
type Options struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	ClientID string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}
