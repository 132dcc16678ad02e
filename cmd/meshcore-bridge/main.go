package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kabili207/meshcore-net-bridge/pkg/bridge"
	"github.com/kabili207/meshcore-net-bridge/pkg/broker"
	"github.com/kabili207/meshcore-net-bridge/pkg/serialio"
)

// Delay between initial serial connection attempts, before the transport's
// own backoff takes over.
const initialRetryDelay = 5 * time.Second

func usage() {
	flag.PrintDefaults()
}

func showUsageAndExit(exitCode int) {
	fmt.Println("MeshCore network bridge")
	usage()
	os.Exit(exitCode)
}

func newChannel(config *bridge.Config) broker.Channel {
	opts := broker.Options{
		Host:         config.Broker.Host,
		Port:         config.Broker.Port,
		TLS:          config.Broker.TLS,
		Username:     config.Broker.Username,
		Password:     config.Broker.Password,
		ClientID:     "meshcore-bridge-" + config.Mesh.Id,
		ReconnectMin: time.Duration(config.Broker.Reconnect.MinDelay),
		ReconnectMax: time.Duration(config.Broker.Reconnect.MaxDelay),
	}

	if config.Broker.Kind == "nats" {
		return broker.NewNATS(opts)
	}

	return broker.NewMQTT(opts)
}

func main() {
	var configFile = flag.String("c", "config.yaml", "Configuration file")
	var verbose = flag.Bool("v", false, "Enable debug logging")
	var showHelp = flag.Bool("h", false, "Show help")

	flag.Usage = usage
	flag.Parse()

	if *showHelp {
		showUsageAndExit(0)
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	config, err := bridge.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	transport := serialio.New(config.Serial.Port, config.Serial.Baud)
	channel := newChannel(config)
	b := bridge.New(transport, channel, config.Broker.RootTopic, config.Mesh.Id)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial serial connection with retry
	for {
		err := transport.Open()
		if err == nil {
			break
		}

		log.With("err", err, "retry", initialRetryDelay.String()).Error("Failed to open serial port")

		select {
		case <-ctx.Done():
			return
		case <-time.After(initialRetryDelay):
		}
	}
	defer transport.Close()

	if err := channel.Connect(); err != nil {
		log.Fatalf("Failed to connect to broker: %s", err.Error())
	}
	defer channel.Disconnect()

	if err := b.Subscribe(); err != nil {
		log.Fatalf("Failed to subscribe: %s", err.Error())
	}

	log.With(
		"mesh_id", config.Mesh.Id,
		"topic", b.PublishTopic(),
	).Info("Bridge running")

	b.Run(ctx)

	log.Info("Shutdown requested")
	b.LogStats()
}
