// Package proto defines the packets exchanged with the game server and their
// binary encoding.
package proto

import (
	"errors"
	"fmt"

	"lockstep/client/internal/net/packet"
)

var (
	// ErrUnknownPacket reports a type byte with no registered message.
	ErrUnknownPacket = errors.New("proto: unknown packet type")
	// ErrMalformed reports a payload that does not match its type.
	ErrMalformed = errors.New("proto: malformed packet")
)

// Message is one decoded packet.
type Message interface {
	Type() PacketType
	encode(p *packet.Packet)
	decode(p *packet.Packet)
}

// Encode renders msg as a complete frame.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("proto: nil message")
	}
	p := packet.New(uint8(msg.Type()))
	msg.encode(p)
	frame, err := p.Finish()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return frame, nil
}

// Decode parses a complete frame into its message. Trailing bytes beyond
// what the message reads are ignored so newer servers may extend packets.
func Decode(frame []byte) (Message, error) {
	p, err := packet.Parse(frame)
	if err != nil {
		return nil, err
	}
	kind := PacketType(p.Type())
	build, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, uint8(kind))
	}
	msg := build()
	msg.decode(p)
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return msg, nil
}

var registry = map[PacketType]func() Message{
	TypeServerFull:             func() Message { return &Full{} },
	TypeServerBanned:           func() Message { return &Banned{} },
	TypeServerError:            func() Message { return &ServerError{} },
	TypeServerNewGame:          func() Message { return &NewGame{} },
	TypeServerShutdown:         func() Message { return &Shutdown{} },
	TypeServerCheckNewGRFs:     func() Message { return &CheckNewGRFs{} },
	TypeServerAuthRequest:      func() Message { return &AuthRequest{} },
	TypeServerEnableEncryption: func() Message { return &EnableEncryption{} },
	TypeServerWelcome:          func() Message { return &Welcome{} },
	TypeServerClientInfo:       func() Message { return &ClientInfo{} },
	TypeServerWait:             func() Message { return &Wait{} },
	TypeServerMapBegin:         func() Message { return &MapBegin{} },
	TypeServerMapSize:          func() Message { return &MapSize{} },
	TypeServerMapData:          func() Message { return &MapData{} },
	TypeServerMapDone:          func() Message { return &MapDone{} },
	TypeServerJoin:             func() Message { return &ServerJoin{} },
	TypeServerFrame:            func() Message { return &Frame{} },
	TypeServerSync:             func() Message { return &Sync{} },
	TypeServerCommand:          func() Message { return &ServerCommand{} },
	TypeServerChat:             func() Message { return &ServerChat{} },
	TypeServerRCon:             func() Message { return &ServerRCon{} },
	TypeServerMove:             func() Message { return &ServerMove{} },
	TypeServerConfigUpdate:     func() Message { return &ConfigUpdate{} },
	TypeServerQuit:             func() Message { return &ServerQuit{} },
	TypeServerErrorQuit:        func() Message { return &ErrorQuit{} },

	TypeClientJoin:           func() Message { return &Join{} },
	TypeClientNewGRFsChecked: func() Message { return &NewGRFsChecked{} },
	TypeClientAuthResponse:   func() Message { return &AuthResponse{} },
	TypeClientIdentify:       func() Message { return &Identify{} },
	TypeClientGetMap:         func() Message { return &GetMap{} },
	TypeClientMapOk:          func() Message { return &MapOk{} },
	TypeClientAck:            func() Message { return &Ack{} },
	TypeClientCommand:        func() Message { return &ClientCommand{} },
	TypeClientChat:           func() Message { return &ClientChat{} },
	TypeClientRCon:           func() Message { return &ClientRCon{} },
	TypeClientMove:           func() Message { return &ClientMove{} },
	TypeClientSetName:        func() Message { return &SetName{} },
	TypeClientQuit:           func() Message { return &ClientQuit{} },
	TypeClientError:          func() Message { return &ClientError{} },
}

type empty struct{}

func (empty) encode(*packet.Packet) {}
func (empty) decode(*packet.Packet) {}
