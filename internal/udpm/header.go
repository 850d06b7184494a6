package udpm

import "encoding/binary"

// Signature values distinguish a direct UDPM payload from an
// indirection key into the SHM registry. Values and meanings are
// fixed by the wire protocol (spec.md §3) and must never change.
const (
	SignatureUDPM uint32 = 0x19651116
	SignatureSHM  uint32 = 0x19691125
)

// HeaderSize is the fixed on-wire size of Header, in bytes.
const HeaderSize = 20

// Header is the fixed 20-byte, little-endian packet header. It
// precedes the NUL-terminated channel name and the payload slice on
// the wire. The original documents host-endian as acceptable for
// co-located senders/receivers but recommends pinning to
// little-endian for portability; this implementation always does.
type Header struct {
	Signature  uint32
	ID         uint32
	LenPayload uint32
	NumPackets uint32
	Offset     uint32
}

// Encode writes h into a freshly allocated HeaderSize-byte buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], h.ID)
	binary.LittleEndian.PutUint32(buf[8:12], h.LenPayload)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumPackets)
	binary.LittleEndian.PutUint32(buf[16:20], h.Offset)
	return buf
}

// DecodeHeader parses the first HeaderSize bytes of buf as a Header.
// The caller must ensure len(buf) >= HeaderSize.
func DecodeHeader(buf []byte) Header {
	return Header{
		Signature:  binary.LittleEndian.Uint32(buf[0:4]),
		ID:         binary.LittleEndian.Uint32(buf[4:8]),
		LenPayload: binary.LittleEndian.Uint32(buf[8:12]),
		NumPackets: binary.LittleEndian.Uint32(buf[12:16]),
		Offset:     binary.LittleEndian.Uint32(buf[16:20]),
	}
}
