// Package packet implements the length-prefixed binary packet used on the
// game socket: a little-endian uint16 size (covering the whole packet), a
// uint8 packet type and the payload.
package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// SizeHeaderLen is the length of the size prefix.
	SizeHeaderLen = 2
	// HeaderLen is the size prefix plus the packet type.
	HeaderLen = SizeHeaderLen + 1
	// MaxSize bounds a single packet including its header.
	MaxSize = 32767
)

var (
	// ErrShort reports a read past the end of the payload.
	ErrShort = errors.New("packet: read past end of payload")
	// ErrTooLarge reports a packet exceeding MaxSize.
	ErrTooLarge = errors.New("packet: exceeds maximum size")
	// ErrBadSize reports a size header that does not match the frame.
	ErrBadSize = errors.New("packet: size header mismatch")
	// ErrUnterminated reports a string without its NUL terminator.
	ErrUnterminated = errors.New("packet: unterminated string")
)

// Packet is a packet under construction or being read. Reads are sticky:
// once one fails every later read returns a zero value and Err reports the
// first failure.
type Packet struct {
	buf []byte
	pos int
	err error
}

// New starts an outgoing packet of the given type.
func New(kind uint8) *Packet {
	buf := make([]byte, HeaderLen, 64)
	buf[SizeHeaderLen] = kind
	return &Packet{buf: buf, pos: HeaderLen}
}

// Parse wraps a complete frame (size header included) for reading.
func Parse(frame []byte) (*Packet, error) {
	if len(frame) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShort, len(frame))
	}
	if len(frame) > MaxSize {
		return nil, ErrTooLarge
	}
	size := int(binary.LittleEndian.Uint16(frame))
	if size != len(frame) {
		return nil, fmt.Errorf("%w: header=%d frame=%d", ErrBadSize, size, len(frame))
	}
	return &Packet{buf: frame, pos: HeaderLen}, nil
}

// Type reports the packet type byte.
func (p *Packet) Type() uint8 {
	return p.buf[SizeHeaderLen]
}

// Err reports the first read failure.
func (p *Packet) Err() error {
	return p.err
}

// Remaining reports the unread payload length.
func (p *Packet) Remaining() int {
	return len(p.buf) - p.pos
}

// CanRead reports whether n more bytes are available.
func (p *Packet) CanRead(n int) bool {
	return p.err == nil && p.Remaining() >= n
}

// Finish writes the size header and returns the encoded frame.
func (p *Packet) Finish() ([]byte, error) {
	if len(p.buf) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(p.buf))
	}
	binary.LittleEndian.PutUint16(p.buf, uint16(len(p.buf)))
	return p.buf, nil
}

func (p *Packet) PutUint8(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *Packet) PutBool(v bool) {
	if v {
		p.PutUint8(1)
		return
	}
	p.PutUint8(0)
}

func (p *Packet) PutUint16(v uint16) {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, v)
}

func (p *Packet) PutUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *Packet) PutUint64(v uint64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

// PutString writes s followed by a NUL terminator. Embedded NULs would end
// the string early on the remote side, so they are cut here.
func (p *Packet) PutString(s string) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
}

// PutBytes writes raw bytes without a length prefix.
func (p *Packet) PutBytes(b []byte) {
	p.buf = append(p.buf, b...)
}

func (p *Packet) take(n int) []byte {
	if p.err != nil {
		return nil
	}
	if p.Remaining() < n {
		p.err = fmt.Errorf("%w: want %d have %d", ErrShort, n, p.Remaining())
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *Packet) Uint8() uint8 {
	b := p.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (p *Packet) Bool() bool {
	return p.Uint8() != 0
}

func (p *Packet) Uint16() uint16 {
	b := p.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (p *Packet) Uint32() uint32 {
	b := p.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (p *Packet) Uint64() uint64 {
	b := p.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Bytes reads exactly len(dst) bytes into dst.
func (p *Packet) Bytes(dst []byte) {
	b := p.take(len(dst))
	if b == nil {
		return
	}
	copy(dst, b)
}

// Rest returns a copy of the unread payload and consumes it.
func (p *Packet) Rest() []byte {
	b := p.take(p.Remaining())
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Text reads a NUL-terminated string. Ill-formed UTF-8 is replaced and
// control characters other than newline are dropped.
func (p *Packet) Text() string {
	if p.err != nil {
		return ""
	}
	end := bytes.IndexByte(p.buf[p.pos:], 0)
	if end < 0 {
		p.err = ErrUnterminated
		return ""
	}
	raw := p.buf[p.pos : p.pos+end]
	p.pos += end + 1
	return sanitize(raw)
}

var stripControl = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n'
}))

func sanitize(raw []byte) string {
	out, _, err := transform.Bytes(transform.Chain(runes.ReplaceIllFormed(), stripControl), raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("�")))
	}
	return string(out)
}

// ReadFrame reads one complete frame from a byte stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [SizeHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(header[:]))
	if size < HeaderLen || size > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	frame := make([]byte, size)
	copy(frame, header[:])
	if _, err := io.ReadFull(r, frame[SizeHeaderLen:]); err != nil {
		return nil, err
	}
	return frame, nil
}
