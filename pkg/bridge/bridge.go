package bridge

import (
	"context"
	"encoding/base64"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/kabili207/meshcore-net-bridge/pkg/broker"
	"github.com/kabili207/meshcore-net-bridge/pkg/serialio"
)

/*
Bridge routes packets between the local serial transport and the broker
channel.

Packets decoded from the serial link are published, base-64 encoded, to
<root>/<mesh id>. Messages arriving from the broker on any other mesh's
topic are decoded and written back down the serial link; messages on the
bridge's own topic are discarded so the wildcard subscription does not
feed the bridge its own traffic.
*/
type Bridge struct {
	serial  *serialio.Transport
	channel broker.Channel

	rootTopic string
	meshId    string

	published atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

func New(serial *serialio.Transport, channel broker.Channel, rootTopic string, meshId string) *Bridge {
	return &Bridge{
		serial:    serial,
		channel:   channel,
		rootTopic: rootTopic,
		meshId:    meshId,
	}
}

// PublishTopic is the topic packets from the local mesh are published to.
func (b *Bridge) PublishTopic() string {
	return b.rootTopic + "/" + b.meshId
}

// SubscribePattern matches the publish topics of all mesh identities,
// including this bridge's own.
func (b *Bridge) SubscribePattern() string {
	return b.rootTopic + "/+"
}

// Subscribe registers the broker-to-serial path on the channel. The
// handler runs on the channel's callback goroutine.
func (b *Bridge) Subscribe() error {
	return b.channel.Subscribe(b.SubscribePattern(), b.handleMessage)
}

/*
Run drives the serial-to-broker path until ctx is cancelled: it polls the
serial transport for packets and publishes them, and reattempts the serial
connection whenever the transport reports it lost. Each iteration blocks
for at most the transport's read timeout or one backoff delay, so
cancellation is observed promptly.
*/
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !b.serial.Connected() {
			if b.serial.TryReconnect(ctx) {
				log.Info("Serial reconnected")
			}
			continue
		}

		packets, err := b.serial.ReadPackets()
		if err != nil {
			log.Warn("Serial connection lost, will attempt reconnection")
			continue
		}

		for _, packet := range packets {
			b.publishPacket(packet)
		}
	}
}

// publishPacket forwards one serial packet to the broker. Best effort: the
// packet is dropped when the channel is disconnected.
func (b *Bridge) publishPacket(payload []byte) {
	if !b.channel.Connected() {
		log.Debug("Dropping packet: broker channel disconnected")
		b.dropped.Add(1)
		return
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	b.channel.Publish(b.PublishTopic(), []byte(encoded))
	b.published.Add(1)

	log.With("topic", b.PublishTopic(), "bytes", len(payload)).Debug("Published packet")
}

// handleMessage forwards one broker message to the serial link, dropping
// anything malformed or originating from this bridge itself.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	slash := strings.LastIndexByte(topic, '/')
	if slash < 0 {
		return
	}

	source := topic[slash+1:]
	if source == "" {
		return
	}

	if source == b.meshId {
		// Our own message echoed back by the wildcard subscription
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		log.With("topic", topic).Warn("Failed to decode base64 payload")
		b.dropped.Add(1)
		return
	}

	log.With("mesh", source, "bytes", len(decoded)).Debug("Received packet from broker")

	b.serial.WritePacket(decoded)
	b.forwarded.Add(1)
}

// LogStats reports routing counters, typically once at shutdown.
func (b *Bridge) LogStats() {
	log.With(
		"published", b.published.Load(),
		"forwarded", b.forwarded.Load(),
		"dropped", b.dropped.Load(),
		"corrupted_frames", b.serial.CorruptedFrames(),
	).Info("Bridge statistics")
}
