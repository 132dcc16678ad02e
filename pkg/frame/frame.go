package frame

import (
	"fmt"
)

const (
	MAGIC_0 = 0xC0
	MAGIC_1 = 0x3E

	HEADER_SIZE   = 4 // magic (2) + length (2)
	CHECKSUM_SIZE = 2

	MAX_PAYLOAD_SIZE = 0xFFFF
)

/*
Fletcher16 computes the Fletcher-16 checksum over data: two running sums
modulo 255, folded as (sum2 << 8) | sum1.
*/
func Fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16

	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}

	return sum2<<8 | sum1
}

/*
Encode wraps a payload into an on-wire frame:

	magic (2) | payload length (2, big-endian) | payload | checksum (2, big-endian)

The checksum covers the payload only. Payloads longer than what the 16-bit
length field can encode are rejected.
*/
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MAX_PAYLOAD_SIZE {
		return nil, fmt.Errorf("payload of %d bytes exceeds maximum of %d", len(payload), MAX_PAYLOAD_SIZE)
	}

	length := uint16(len(payload))
	checksum := Fletcher16(payload)

	data := make([]byte, 0, HEADER_SIZE+len(payload)+CHECKSUM_SIZE)
	data = append(data, MAGIC_0, MAGIC_1)
	data = append(data, byte(length>>8), byte(length&0xFF))
	data = append(data, payload...)
	data = append(data, byte(checksum>>8), byte(checksum&0xFF))

	return data, nil
}
