// Package mapxfer collects the snapshot sent during the map transfer and
// turns it into a decompressed byte stream for the loader.
package mapxfer

import (
	"errors"
	"io"
)

// BlockSize is the size of the fixed blocks chunks are copied into.
const BlockSize = 32 * 1024

// ErrLimit reports a snapshot growing past the configured bound.
var ErrLimit = errors.New("mapxfer: snapshot exceeds size limit")

// PacketReader buffers snapshot chunks as they arrive and replays them as a
// sequential stream. Chunks are copied, so callers may reuse their buffers.
type PacketReader struct {
	blocks   [][]byte
	received int64
	total    int64
	limit    int64

	// read position
	block  int
	offset int
}

// NewPacketReader returns an empty reader. A positive limit caps the number
// of bytes accepted.
func NewPacketReader(limit int64) *PacketReader {
	return &PacketReader{limit: limit}
}

// SetTotal records the size hint from the server.
func (r *PacketReader) SetTotal(total int64) {
	r.total = total
}

// Total reports the size hint, zero when unknown.
func (r *PacketReader) Total() int64 {
	return r.total
}

// Received reports how many bytes were appended.
func (r *PacketReader) Received() int64 {
	return r.received
}

// Progress reports the fraction received in [0,1], or -1 without a hint.
func (r *PacketReader) Progress() float64 {
	if r.total <= 0 {
		return -1
	}
	if r.received >= r.total {
		return 1
	}
	return float64(r.received) / float64(r.total)
}

// Append copies chunk onto the end of the buffer.
func (r *PacketReader) Append(chunk []byte) error {
	if r.limit > 0 && r.received+int64(len(chunk)) > r.limit {
		return ErrLimit
	}
	r.received += int64(len(chunk))
	for len(chunk) > 0 {
		n := len(r.blocks)
		if n == 0 || len(r.blocks[n-1]) == BlockSize {
			r.blocks = append(r.blocks, make([]byte, 0, BlockSize))
			n++
		}
		last := r.blocks[n-1]
		take := min(BlockSize-len(last), len(chunk))
		r.blocks[n-1] = append(last, chunk[:take]...)
		chunk = chunk[take:]
	}
	return nil
}

// Read implements io.Reader over the buffered bytes.
func (r *PacketReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) && r.block < len(r.blocks) {
		current := r.blocks[r.block]
		copied := copy(p[n:], current[r.offset:])
		n += copied
		r.offset += copied
		if r.offset == len(current) {
			r.block++
			r.offset = 0
		}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadByte implements io.ByteReader.
func (r *PacketReader) ReadByte() (byte, error) {
	for r.block < len(r.blocks) {
		current := r.blocks[r.block]
		if r.offset < len(current) {
			b := current[r.offset]
			r.offset++
			return b, nil
		}
		r.block++
		r.offset = 0
	}
	return 0, io.EOF
}

// Rewind moves the read position back to the start.
func (r *PacketReader) Rewind() {
	r.block, r.offset = 0, 0
}

// Reset drops every buffered byte and the size hint.
func (r *PacketReader) Reset() {
	r.blocks = nil
	r.received = 0
	r.total = 0
	r.Rewind()
}
