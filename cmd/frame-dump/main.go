package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/kabili207/meshcore-net-bridge/pkg/serialio"
)

/*
Debug utility: attach to a MeshCore device and dump every decoded packet
as hex, without any broker involved.
*/
func main() {
	var serialPort = flag.String("p", "", "Serial port")
	var baudRate = flag.Int("b", serialio.DEFAULT_BAUD_RATE, "Baud rate")
	flag.Parse()

	if *serialPort == "" {
		log.Fatal("Serial port is not specified")
	}

	transport := serialio.New(*serialPort, *baudRate)
	if err := transport.Open(); err != nil {
		log.Fatalf("Failed to open port: %s", err.Error())
	}
	defer transport.Close()

	for {
		packets, err := transport.ReadPackets()
		if err != nil {
			log.With("corrupted_frames", transport.CorruptedFrames()).Error("Serial port lost")
			os.Exit(1)
		}

		for _, packet := range packets {
			fmt.Printf("[%4d bytes] %s\n", len(packet), hex.EncodeToString(packet))
		}
	}
}
