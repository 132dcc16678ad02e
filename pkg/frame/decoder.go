package frame

import (
	"bytes"
	"sync/atomic"
)

/*
Decoder extracts framed payloads from a serial byte stream.

Incoming bytes are accumulated across Feed calls until complete frames can
be validated, so the stream may be delivered in chunks of any size. A Decoder
is owned by a single read loop and is not safe for concurrent use, except
for the corruption counter which may be read from anywhere.
*/
type Decoder struct {
	buffer    []byte
	corrupted atomic.Uint64
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset discards all accumulated bytes. Invoked when the serial connection
// is reestablished so that a stale partial frame from the previous session
// does not bleed into the new one.
func (d *Decoder) Reset() {
	d.buffer = nil
}

// Corrupted returns the number of frames dropped due to checksum mismatch.
func (d *Decoder) Corrupted() uint64 {
	return d.corrupted.Load()
}

/*
Feed appends data to the internal buffer and returns all complete payloads
that can be extracted from it, possibly none. Never blocks.

Bytes preceding a frame start are discarded. A payload byte that happens to
match the first magic byte is skipped one byte at a time until the scan
resynchronizes on a real frame. Frames failing the checksum are dropped
silently; corruption is expected on a noisy serial link and must not halt
decoding of the frames that follow.
*/
func (d *Decoder) Feed(data []byte) [][]byte {
	d.buffer = append(d.buffer, data...)

	var payloads [][]byte

	for {
		start := bytes.IndexByte(d.buffer, MAGIC_0)
		if start < 0 {
			// No frame can start in the buffered data
			d.buffer = nil
			break
		}

		// Discard bytes before the candidate frame start
		if start > 0 {
			d.buffer = d.buffer[start:]
		}

		if len(d.buffer) < 2 {
			break
		}

		if d.buffer[1] != MAGIC_1 {
			// False positive start byte, skip it and rescan
			d.buffer = d.buffer[1:]
			continue
		}

		if len(d.buffer) < HEADER_SIZE {
			break
		}

		length := int(d.buffer[2])<<8 | int(d.buffer[3])
		frameSize := HEADER_SIZE + length + CHECKSUM_SIZE

		// Incomplete frame, wait for more bytes
		if len(d.buffer) < frameSize {
			break
		}

		payload := d.buffer[HEADER_SIZE : HEADER_SIZE+length]
		received := uint16(d.buffer[HEADER_SIZE+length])<<8 | uint16(d.buffer[HEADER_SIZE+length+1])

		if received == Fletcher16(payload) {
			payloads = append(payloads, append([]byte(nil), payload...))
		} else {
			d.corrupted.Add(1)
		}

		d.buffer = d.buffer[frameSize:]
	}

	return payloads
}
