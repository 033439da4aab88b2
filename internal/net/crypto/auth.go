// Package crypto implements the X25519 key exchange used to authenticate
// with the server and the per-packet encryption that follows it.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"lockstep/client/internal/net/proto"
)

var (
	// ErrUnsupportedMethod reports an AuthRequest no authenticator handles.
	ErrUnsupportedMethod = errors.New("crypto: unsupported authentication method")
	// ErrNoPassword reports a password exchange without a password.
	ErrNoPassword = errors.New("crypto: server requires a password")
	// ErrBadProof reports an AuthResponse that does not verify.
	ErrBadProof = errors.New("crypto: authentication proof rejected")
)

// SessionKeys are the symmetric keys derived from the exchange.
type SessionKeys struct {
	// Send encrypts client to server traffic.
	Send [proto.KeySize]byte
	// Receive decrypts server to client traffic.
	Receive [proto.KeySize]byte
}

// Authenticator answers a server AuthRequest.
type Authenticator interface {
	Supports(method proto.AuthMethod) bool
	Respond(req *proto.AuthRequest) (*proto.AuthResponse, SessionKeys, error)
}

// DeriveSessionKeys hashes the shared secret, both public keys and the
// optional password into the two directional keys.
func DeriveSessionKeys(shared, serverPub, clientPub []byte, password string) SessionKeys {
	h, _ := blake2b.New512(nil)
	h.Write(shared)
	h.Write(serverPub)
	h.Write(clientPub)
	h.Write([]byte(password))
	sum := h.Sum(nil)

	var keys SessionKeys
	copy(keys.Send[:], sum[:proto.KeySize])
	copy(keys.Receive[:], sum[proto.KeySize:])
	return keys
}

// KeyPair is an X25519 key pair.
type KeyPair struct {
	Secret [proto.KeySize]byte
	Public [proto.KeySize]byte
}

// NewKeyPair derives the public key for secret.
func NewKeyPair(secret [proto.KeySize]byte) (KeyPair, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}
	pair := KeyPair{Secret: secret}
	copy(pair.Public[:], pub)
	return pair, nil
}

// GenerateKeyPair draws a fresh secret from r, or crypto/rand when r is nil.
func GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	var secret [proto.KeySize]byte
	if _, err := io.ReadFull(r, secret[:]); err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	return NewKeyPair(secret)
}

// respond runs the exchange with pair and seals the server public key as
// proof of possession of the derived keys.
func respond(pair KeyPair, req *proto.AuthRequest, password string) (*proto.AuthResponse, SessionKeys, error) {
	shared, err := curve25519.X25519(pair.Secret[:], req.PublicKey[:])
	if err != nil {
		return nil, SessionKeys{}, fmt.Errorf("key exchange: %w", err)
	}
	keys := DeriveSessionKeys(shared, req.PublicKey[:], pair.Public[:], password)
	aead, err := chacha20poly1305.NewX(keys.Send[:])
	if err != nil {
		return nil, SessionKeys{}, err
	}
	resp := &proto.AuthResponse{
		PublicKey: pair.Public,
		Proof:     aead.Seal(nil, req.Nonce[:], req.PublicKey[:], pair.Public[:]),
	}
	return resp, keys, nil
}

// PasswordAuthenticator handles the password exchange and the plain key
// exchange with a fresh ephemeral key per attempt.
type PasswordAuthenticator struct {
	Password string
	Rand     io.Reader
}

func (a *PasswordAuthenticator) Supports(method proto.AuthMethod) bool {
	return method == proto.AuthX25519PAKE || method == proto.AuthKeyExchangeOnly
}

func (a *PasswordAuthenticator) Respond(req *proto.AuthRequest) (*proto.AuthResponse, SessionKeys, error) {
	password := ""
	switch req.Method {
	case proto.AuthX25519PAKE:
		if a.Password == "" {
			return nil, SessionKeys{}, ErrNoPassword
		}
		password = a.Password
	case proto.AuthKeyExchangeOnly:
	default:
		return nil, SessionKeys{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}
	pair, err := GenerateKeyPair(a.Rand)
	if err != nil {
		return nil, SessionKeys{}, err
	}
	return respond(pair, req, password)
}

// KeyAuthenticator proves possession of a persistent client key that the
// server has on its allow list.
type KeyAuthenticator struct {
	Pair KeyPair
}

func (a *KeyAuthenticator) Supports(method proto.AuthMethod) bool {
	return method == proto.AuthX25519AuthorizedKey
}

func (a *KeyAuthenticator) Respond(req *proto.AuthRequest) (*proto.AuthResponse, SessionKeys, error) {
	if !a.Supports(req.Method) {
		return nil, SessionKeys{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}
	return respond(a.Pair, req, "")
}

type chain []Authenticator

// Chain tries each authenticator in order and uses the first that supports
// the requested method.
func Chain(auths ...Authenticator) Authenticator {
	var c chain
	for _, a := range auths {
		if a != nil {
			c = append(c, a)
		}
	}
	return c
}

func (c chain) Supports(method proto.AuthMethod) bool {
	for _, a := range c {
		if a.Supports(method) {
			return true
		}
	}
	return false
}

func (c chain) Respond(req *proto.AuthRequest) (*proto.AuthResponse, SessionKeys, error) {
	for _, a := range c {
		if a.Supports(req.Method) {
			return a.Respond(req)
		}
	}
	return nil, SessionKeys{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
}

// Verify is the server half of the exchange. It checks resp against the
// request the server sent and returns the keys from the server's point of
// view: Send is still client to server.
func Verify(server KeyPair, req *proto.AuthRequest, resp *proto.AuthResponse, password string) (SessionKeys, error) {
	shared, err := curve25519.X25519(server.Secret[:], resp.PublicKey[:])
	if err != nil {
		return SessionKeys{}, fmt.Errorf("key exchange: %w", err)
	}
	keys := DeriveSessionKeys(shared, server.Public[:], resp.PublicKey[:], password)
	aead, err := chacha20poly1305.NewX(keys.Send[:])
	if err != nil {
		return SessionKeys{}, err
	}
	plain, err := aead.Open(nil, req.Nonce[:], resp.Proof, resp.PublicKey[:])
	if err != nil || subtle.ConstantTimeCompare(plain, server.Public[:]) != 1 {
		return SessionKeys{}, ErrBadProof
	}
	return keys, nil
}
