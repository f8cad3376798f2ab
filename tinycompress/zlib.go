// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. The output is readable by any zlib decoder, which is all
// the Klipper host needs from the identify dictionary, and the writer
// allocates nothing beyond its block buffer.
package tinycompress

import (
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

// maxStored is the largest payload a single stored block can carry
const maxStored = 0xFFFF

var ErrClosed = errors.New("tinycompress: write after close")

// Writer is an io.WriteCloser producing a zlib stream
type Writer struct {
	out        io.Writer
	buf        []byte
	adler      hash.Hash32
	wroteHdr   bool
	closed     bool
	blocksSent int
}

// NewWriter returns a Writer that emits to w. Data is buffered into stored
// blocks and flushed when a block fills or on Close.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, 4096)
}

// NewWriterSize is NewWriter with an explicit block size (clamped to the
// stored block limit).
func NewWriterSize(w io.Writer, blockSize int) *Writer {
	if blockSize <= 0 || blockSize > maxStored {
		blockSize = maxStored
	}
	return &Writer{
		out:   w,
		buf:   make([]byte, 0, blockSize),
		adler: adler32.New(),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	n := 0
	for len(p) > 0 {
		room := cap(w.buf) - len(w.buf)
		if room == 0 {
			if err := w.flushBlock(false); err != nil {
				return n, err
			}
			continue
		}
		if room > len(p) {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
		w.adler.Write(p[:room])
		p = p[room:]
		n += room
	}
	return n, nil
}

// Close writes the final block and the Adler-32 trailer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flushBlock(true); err != nil {
		return err
	}
	w.closed = true
	sum := w.adler.Sum32()
	_, err := w.out.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// BlocksWritten reports how many stored blocks have been emitted
func (w *Writer) BlocksWritten() int { return w.blocksSent }

func (w *Writer) flushBlock(final bool) error {
	if !w.wroteHdr {
		// CMF 0x78: deflate, 32K window; FLG 0x01 makes the header a
		// multiple of 31 with no dictionary and fastest level.
		if _, err := w.out.Write([]byte{0x78, 0x01}); err != nil {
			return err
		}
		w.wroteHdr = true
	}
	var bfinal byte
	if final {
		bfinal = 1
	}
	n := uint16(len(w.buf))
	hdr := [5]byte{bfinal, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
	if _, err := w.out.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.out.Write(w.buf); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	w.blocksSent++
	return nil
}

// Compress returns data wrapped as a complete zlib stream
func Compress(data []byte) ([]byte, error) {
	var out sliceWriter
	w := NewWriterSize(&out, len(data))
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
