package deadletter

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"time"

	"tracker/pkg/exception"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 24
	recordChecksumSize        = 4

	maxFieldLen = uint64(^uint32(0))
)

var (
	recordMagic = [4]byte{'D', 'L', 'Q', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

// Entry is one spilled object write.
type Entry struct {
	Key        string
	Value      []byte
	ReceivedAt time.Time
}

// Layout (little endian):
//
//	magic[4] version u16 headerSize u16 keyLen u32 valueLen u32 receivedAt i64
//	key value crc32c(header|key|value)
func encodeHeader(dst []byte, keyLen, valueLen int, receivedAt time.Time) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(keyLen))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(valueLen))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(receivedAt.UnixNano()))
}

func checksum(header, key, value []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	crc = crc32.Update(crc, crcTable, key)
	return crc32.Update(crc, crcTable, value)
}

func decodeHeader(src []byte) (keyLen, valueLen uint32, receivedAt time.Time, err error) {
	if len(src) < recordHeaderSize {
		return 0, 0, time.Time{}, exception.ErrDeadLetterBadMagic
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return 0, 0, time.Time{}, exception.ErrDeadLetterBadMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return 0, 0, time.Time{}, exception.ErrDeadLetterBadVersion
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return 0, 0, time.Time{}, exception.ErrDeadLetterBadVersion
	}
	keyLen = binary.LittleEndian.Uint32(src[8:12])
	valueLen = binary.LittleEndian.Uint32(src[12:16])
	receivedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(src[16:24]))).UTC()
	return keyLen, valueLen, receivedAt, nil
}
