package shm

import "encoding/binary"

// maxKeySize bounds a segment name's length within a slot's fixed
// header. The original's key is a boost::interprocess string with no
// such limit; a fixed directory needs one.
const maxKeySize = 120

// slotHeaderSize is the fixed-size prefix of every slot record:
// inUse(4) + keyLen(4) + key(maxKeySize) + dataLen(8) + dataCap(8).
const slotHeaderSize = 4 + 4 + maxKeySize + 8 + 8

const slotInUse uint32 = 1

// slotHeader is the decoded view of a slot's fixed header region.
type slotHeader struct {
	inUse   uint32
	key     string
	dataLen uint64
	dataCap uint64
}

func decodeSlotHeader(buf []byte) slotHeader {
	inUse := binary.LittleEndian.Uint32(buf[0:4])
	keyLen := binary.LittleEndian.Uint32(buf[4:8])
	if keyLen > maxKeySize {
		keyLen = maxKeySize
	}
	keyBytes := buf[8 : 8+keyLen]
	dataLen := binary.LittleEndian.Uint64(buf[8+maxKeySize : 16+maxKeySize])
	dataCap := binary.LittleEndian.Uint64(buf[16+maxKeySize : 24+maxKeySize])
	return slotHeader{
		inUse:   inUse,
		key:     string(keyBytes),
		dataLen: dataLen,
		dataCap: dataCap,
	}
}

func encodeSlotHeader(buf []byte, h slotHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.inUse)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(h.key)))
	clear(buf[8 : 8+maxKeySize])
	copy(buf[8:8+maxKeySize], h.key)
	binary.LittleEndian.PutUint64(buf[8+maxKeySize:16+maxKeySize], h.dataLen)
	binary.LittleEndian.PutUint64(buf[16+maxKeySize:24+maxKeySize], h.dataCap)
}

func setSlotDataLen(buf []byte, n uint64) {
	binary.LittleEndian.PutUint64(buf[8+maxKeySize:16+maxKeySize], n)
}
