package deadletter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
)

// Writer appends entries to rotated segment files from a buffered queue.
// It runs until Close so writes failing during shutdown are still captured.
type Writer struct {
	cfg Config
	ch  chan Entry
	wg  sync.WaitGroup
	err atomic.Value
	now func() time.Time

	started atomic.Bool
	closed  atomic.Bool
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create deadletter dir %s", cfg.Dir)
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan Entry, cfg.QueueSize),
		now: time.Now,
	}, nil
}

// Start runs the writer loop in a new goroutine. Calling it twice is a no-op.
func (w *Writer) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

// Close drains the queue, flushes and syncs the open segment.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer loop.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Append enqueues a failed write without blocking.
func (w *Writer) Append(key string, value []byte) error {
	if w.closed.Load() {
		return exception.ErrDeadLetterClosed
	}
	if !w.started.Load() {
		return exception.ErrDeadLetterNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(key)) > maxFieldLen || uint64(len(value)) > maxFieldLen {
		return exception.ErrDeadLetterTooLarge
	}

	entry := Entry{
		Key:        key,
		Value:      append([]byte(nil), value...),
		ReceivedAt: w.now().UTC(),
	}
	select {
	case w.ch <- entry:
		return nil
	default:
		return exception.ErrDeadLetterQueueFull
	}
}

func (w *Writer) run() {
	var (
		seg         *segment
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		checksumBuf [recordChecksumSize]byte
		flushC      <-chan time.Time
	)
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}
	defer func() {
		if err := seg.close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case entry, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeEntry(&seg, &segID, headerBuf, &checksumBuf, entry); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := seg.flush(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) writeEntry(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[recordChecksumSize]byte, entry Entry) error {
	now := w.now().UTC()
	size := int64(recordHeaderSize + len(entry.Key) + len(entry.Value) + recordChecksumSize)
	if w.shouldRotate(*seg, now, size) {
		if err := (*seg).close(); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	key := []byte(entry.Key)
	encodeHeader(headerBuf, len(key), len(entry.Value), entry.ReceivedAt)
	binary.LittleEndian.PutUint32(checksumBuf[:], checksum(headerBuf, key, entry.Value))

	buf := (*seg).buf
	for _, part := range [][]byte{headerBuf, key, entry.Value, checksumBuf[:]} {
		if len(part) == 0 {
			continue
		}
		if _, err := buf.Write(part); err != nil {
			return errors.Wrapf(err, "write %s", (*seg).path)
		}
	}
	(*seg).size += size
	return nil
}

func (w *Writer) shouldRotate(seg *segment, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if seg.size > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	if w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, *segID, fileSuffix)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "open segment %s", path)
		}
		return &segment{
			path:     path,
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

type segment struct {
	path     string
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return err
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
