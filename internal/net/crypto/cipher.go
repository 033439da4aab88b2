package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"lockstep/client/internal/net/packet"
	"lockstep/client/internal/net/proto"
)

// ErrDecrypt reports a packet that failed authentication.
var ErrDecrypt = errors.New("crypto: packet authentication failed")

// Cipher seals or opens packets for one direction. The size header stays in
// the clear and is rewritten to cover the appended tag. Each packet uses the
// base nonce XORed with a running counter, so both sides must process
// packets in the same order.
type Cipher struct {
	aead    cipher.AEAD
	base    [proto.NonceSize]byte
	counter uint64
}

// NewCipher builds a cipher from a directional key and the base nonce.
func NewCipher(key [proto.KeySize]byte, nonce [proto.NonceSize]byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead, base: nonce}, nil
}

func (c *Cipher) next() []byte {
	nonce := c.base
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], c.counter)
	for i := range ctr {
		nonce[i] ^= ctr[i]
	}
	c.counter++
	return nonce[:]
}

// SealFrame encrypts the type byte and payload of frame.
func (c *Cipher) SealFrame(frame []byte) ([]byte, error) {
	if len(frame) < packet.HeaderLen {
		return nil, packet.ErrShort
	}
	size := len(frame) + c.aead.Overhead()
	if size > packet.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes sealed", packet.ErrTooLarge, size)
	}
	var header [packet.SizeHeaderLen]byte
	binary.LittleEndian.PutUint16(header[:], uint16(size))
	out := make([]byte, 0, size)
	out = append(out, header[:]...)
	return c.aead.Seal(out, c.next(), frame[packet.SizeHeaderLen:], header[:]), nil
}

// OpenFrame decrypts a sealed frame back into a plain frame.
func (c *Cipher) OpenFrame(frame []byte) ([]byte, error) {
	if len(frame) < packet.HeaderLen+c.aead.Overhead() {
		return nil, packet.ErrShort
	}
	header := frame[:packet.SizeHeaderLen]
	plain, err := c.aead.Open(nil, c.next(), frame[packet.SizeHeaderLen:], header)
	if err != nil {
		return nil, ErrDecrypt
	}
	out := make([]byte, packet.SizeHeaderLen, packet.SizeHeaderLen+len(plain))
	binary.LittleEndian.PutUint16(out, uint16(packet.SizeHeaderLen+len(plain)))
	return append(out, plain...), nil
}

// Channel holds the ciphers for both directions.
type Channel struct {
	Send    *Cipher
	Receive *Cipher
}

// NewChannel installs keys with the nonce from EnableEncryption.
func NewChannel(keys SessionKeys, nonce [proto.NonceSize]byte) (*Channel, error) {
	send, err := NewCipher(keys.Send, nonce)
	if err != nil {
		return nil, err
	}
	recv, err := NewCipher(keys.Receive, nonce)
	if err != nil {
		return nil, err
	}
	return &Channel{Send: send, Receive: recv}, nil
}

// NewServerChannel builds the server side of a channel from the same keys.
func NewServerChannel(keys SessionKeys, nonce [proto.NonceSize]byte) (*Channel, error) {
	return NewChannel(SessionKeys{Send: keys.Receive, Receive: keys.Send}, nonce)
}
