package udpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Signature:  SignatureUDPM,
		ID:         0xDEADBEEF,
		LenPayload: 4096,
		NumPackets: 3,
		Offset:     1024,
	}
	buf := h.Encode()
	assert.Len(t, buf, HeaderSize)

	got := DecodeHeader(buf)
	assert.Equal(t, h, got)
}

func TestHeaderEncodeIsLittleEndian(t *testing.T) {
	h := Header{Signature: 0x01020304}
	buf := h.Encode()
	assert.Equal(t, byte(0x04), buf[0])
	assert.Equal(t, byte(0x03), buf[1])
	assert.Equal(t, byte(0x02), buf[2])
	assert.Equal(t, byte(0x01), buf[3])
}
