package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, payload []byte) []byte {
	t.Helper()

	data, err := Encode(payload)
	require.NoError(t, err)
	return data
}

func TestDecodeSingleFrame(t *testing.T) {
	decoder := NewDecoder()

	payloads := decoder.Feed([]byte{0xC0, 0x3E, 0x00, 0x03, 0x01, 0x02, 0x03, 0x0A, 0x06})

	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, payloads[0])
}

func TestDecodeChecksumMismatch(t *testing.T) {
	decoder := NewDecoder()

	// Same frame with the checksum bytes flipped
	payloads := decoder.Feed([]byte{0xC0, 0x3E, 0x00, 0x03, 0x01, 0x02, 0x03, 0x06, 0x0A})

	assert.Equal(t, 0, len(payloads))
	assert.Equal(t, uint64(1), decoder.Corrupted())
}

func TestDecodeRoundTrip(t *testing.T) {
	decoder := NewDecoder()

	for _, payload := range [][]byte{
		{},
		{0x00},
		{0xDE, 0xAD, 0xBE, 0xEF},
		make([]byte, 300),
		make([]byte, 65535),
	} {
		payloads := decoder.Feed(mustEncode(t, payload))

		require.Equal(t, 1, len(payloads))
		assert.Equal(t, payload, payloads[0])
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	decoder := NewDecoder()
	data := mustEncode(t, []byte{0x10, 0x20, 0x30, 0x40})

	var payloads [][]byte
	for _, b := range data {
		payloads = append(payloads, decoder.Feed([]byte{b})...)
	}

	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x10, 0x20, 0x30, 0x40}, payloads[0])
}

func TestDecodeTwoFramesOneFeed(t *testing.T) {
	decoder := NewDecoder()

	data := append(mustEncode(t, []byte{0x01}), mustEncode(t, []byte{0x02})...)
	payloads := decoder.Feed(data)

	require.Equal(t, 2, len(payloads))
	assert.Equal(t, []byte{0x01}, payloads[0])
	assert.Equal(t, []byte{0x02}, payloads[1])
}

func TestDecodeGarbagePrefix(t *testing.T) {
	decoder := NewDecoder()

	data := append([]byte{0x55, 0x66, 0x77}, mustEncode(t, []byte{0x01, 0x02})...)
	payloads := decoder.Feed(data)

	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x01, 0x02}, payloads[0])
}

func TestDecodeResyncOnFalseStartByte(t *testing.T) {
	decoder := NewDecoder()

	// A lone magic start byte not followed by the second magic byte must
	// not wedge the decoder.
	data := append([]byte{0xC0, 0x11}, mustEncode(t, []byte{0x01, 0x02})...)
	payloads := decoder.Feed(data)

	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x01, 0x02}, payloads[0])
}

func TestDecodePayloadContainingMagic(t *testing.T) {
	decoder := NewDecoder()

	// Payload bytes deliberately contain the full magic sequence
	payload := []byte{0xC0, 0x3E, 0xC0, 0xC0, 0x3E}
	data := append(mustEncode(t, payload), mustEncode(t, []byte{0x99})...)

	payloads := decoder.Feed(data)

	require.Equal(t, 2, len(payloads))
	assert.Equal(t, payload, payloads[0])
	assert.Equal(t, []byte{0x99}, payloads[1])
}

func TestDecodeCorruptionDropsOneFrameOnly(t *testing.T) {
	decoder := NewDecoder()

	corrupted := mustEncode(t, []byte{0x01, 0x02, 0x03})
	corrupted[5] ^= 0xFF // flip a payload byte after checksum computation

	data := append(corrupted, mustEncode(t, []byte{0x04, 0x05})...)
	payloads := decoder.Feed(data)

	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x04, 0x05}, payloads[0])
	assert.Equal(t, uint64(1), decoder.Corrupted())
}

func TestDecodeIncompleteFrame(t *testing.T) {
	decoder := NewDecoder()
	data := mustEncode(t, []byte{0x01, 0x02, 0x03, 0x04})

	assert.Equal(t, 0, len(decoder.Feed(data[:3])))
	assert.Equal(t, 0, len(decoder.Feed(data[3:6])))

	payloads := decoder.Feed(data[6:])
	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, payloads[0])
}

func TestDecodeReset(t *testing.T) {
	decoder := NewDecoder()
	data := mustEncode(t, []byte{0x01, 0x02, 0x03, 0x04})

	// Half a frame, then a reconnect discards the partial state
	decoder.Feed(data[:5])
	decoder.Reset()

	assert.Equal(t, 0, len(decoder.Feed(data[5:])))

	// A complete frame after the reset decodes normally
	payloads := decoder.Feed(data)
	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, payloads[0])
}

func TestDecodeNoMagicDropsBuffer(t *testing.T) {
	decoder := NewDecoder()

	assert.Equal(t, 0, len(decoder.Feed([]byte{0x01, 0x02, 0x03, 0x04})))

	// Buffer was discarded; a fresh frame still decodes
	payloads := decoder.Feed(mustEncode(t, []byte{0xAA}))
	require.Equal(t, 1, len(payloads))
	assert.Equal(t, []byte{0xAA}, payloads[0])
}
