package deadletter

import (
	"bufio"
	"encoding/binary"
	"io"

	"tracker/pkg/exception"
)

// Reader decodes dead-letter records sequentially.
type Reader struct {
	r         *bufio.Reader
	headerBuf []byte
	key       []byte
	value     []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next entry or io.EOF at a clean end of input.
// A truncated tail yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Entry, error) {
	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return Entry{}, io.EOF
		}
		return Entry{}, err
	}

	keyLen, valueLen, receivedAt, err := decodeHeader(r.headerBuf)
	if err != nil {
		return Entry{}, err
	}

	r.key = grow(r.key, int(keyLen))
	if _, err := io.ReadFull(r.r, r.key); err != nil {
		return Entry{}, unexpected(err)
	}
	r.value = grow(r.value, int(valueLen))
	if _, err := io.ReadFull(r.r, r.value); err != nil {
		return Entry{}, unexpected(err)
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return Entry{}, unexpected(err)
	}
	if checksum(r.headerBuf, r.key, r.value) != binary.LittleEndian.Uint32(checksumBuf[:]) {
		return Entry{}, exception.ErrDeadLetterBadChecksum
	}

	return Entry{
		Key:        string(r.key),
		Value:      append([]byte(nil), r.value...),
		ReceivedAt: receivedAt,
	}, nil
}

func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
