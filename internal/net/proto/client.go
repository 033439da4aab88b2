package proto

import (
	"lockstep/client/internal/net/packet"
	"lockstep/client/internal/sim"
)

// Join opens the handshake.
type Join struct {
	ClientVersion   string
	ProtocolVersion uint8
}

func (*Join) Type() PacketType { return TypeClientJoin }

func (m *Join) encode(p *packet.Packet) {
	p.PutString(m.ClientVersion)
	p.PutUint8(m.ProtocolVersion)
}

func (m *Join) decode(p *packet.Packet) {
	m.ClientVersion = p.Text()
	m.ProtocolVersion = p.Uint8()
}

// NewGRFsChecked confirms the content list matched.
type NewGRFsChecked struct{ empty }

func (*NewGRFsChecked) Type() PacketType { return TypeClientNewGRFsChecked }

// AuthResponse answers an AuthRequest with the client public key and a
// sealed proof. The layout of Proof is owned by the authenticator.
type AuthResponse struct {
	PublicKey [KeySize]byte
	Proof     []byte
}

func (*AuthResponse) Type() PacketType { return TypeClientAuthResponse }

func (m *AuthResponse) encode(p *packet.Packet) {
	p.PutBytes(m.PublicKey[:])
	p.PutBytes(m.Proof)
}

func (m *AuthResponse) decode(p *packet.Packet) {
	p.Bytes(m.PublicKey[:])
	m.Proof = p.Rest()
}

// Identify tells the server who joins and which snapshot formats the
// client can decompress.
type Identify struct {
	Name    string
	Company sim.CompanyID
	Formats []string
}

func (*Identify) Type() PacketType { return TypeClientIdentify }

func (m *Identify) encode(p *packet.Packet) {
	p.PutString(m.Name)
	p.PutUint8(uint8(m.Company))
	p.PutUint8(uint8(len(m.Formats)))
	for _, format := range m.Formats {
		p.PutString(format)
	}
}

func (m *Identify) decode(p *packet.Packet) {
	m.Name = p.Text()
	m.Company = sim.CompanyID(p.Uint8())
	n := int(p.Uint8())
	m.Formats = nil
	for i := 0; i < n && p.Err() == nil; i++ {
		m.Formats = append(m.Formats, p.Text())
	}
}

// GetMap requests the snapshot.
type GetMap struct{ empty }

func (*GetMap) Type() PacketType { return TypeClientGetMap }

// MapOk confirms the snapshot loaded.
type MapOk struct{ empty }

func (*MapOk) Type() PacketType { return TypeClientMapOk }

// Ack reports local progress and echoes the server token.
type Ack struct {
	Frame uint32
	Token uint8
}

func (*Ack) Type() PacketType { return TypeClientAck }

func (m *Ack) encode(p *packet.Packet) {
	p.PutUint32(m.Frame)
	p.PutUint8(m.Token)
}

func (m *Ack) decode(p *packet.Packet) {
	m.Frame = p.Uint32()
	m.Token = p.Uint8()
}

// ClientCommand submits a command for scheduling.
type ClientCommand struct {
	Command sim.Command
}

func (*ClientCommand) Type() PacketType { return TypeClientCommand }

func (m *ClientCommand) encode(p *packet.Packet) { putCommand(p, m.Command) }

func (m *ClientCommand) decode(p *packet.Packet) { m.Command = readCommand(p) }

// ClientChat sends a chat line or a chat-carried action.
type ClientChat struct {
	Action ChatAction
	Dest   DestType
	Target uint32
	Text   string
	Data   uint64
}

func (*ClientChat) Type() PacketType { return TypeClientChat }

func (m *ClientChat) encode(p *packet.Packet) {
	p.PutUint8(uint8(m.Action))
	p.PutUint8(uint8(m.Dest))
	p.PutUint32(m.Target)
	p.PutString(m.Text)
	p.PutUint64(m.Data)
}

func (m *ClientChat) decode(p *packet.Packet) {
	m.Action = ChatAction(p.Uint8())
	m.Dest = DestType(p.Uint8())
	m.Target = p.Uint32()
	m.Text = p.Text()
	m.Data = p.Uint64()
}

// ClientError reports a client-side failure before disconnecting.
type ClientError struct {
	Code ErrorCode
}

func (*ClientError) Type() PacketType { return TypeClientError }

func (m *ClientError) encode(p *packet.Packet) { p.PutUint8(uint8(m.Code)) }

func (m *ClientError) decode(p *packet.Packet) { m.Code = ErrorCode(p.Uint8()) }

// SetName renames the client.
type SetName struct {
	Name string
}

func (*SetName) Type() PacketType { return TypeClientSetName }

func (m *SetName) encode(p *packet.Packet) { p.PutString(m.Name) }

func (m *SetName) decode(p *packet.Packet) { m.Name = p.Text() }

// ClientQuit announces a clean disconnect.
type ClientQuit struct{ empty }

func (*ClientQuit) Type() PacketType { return TypeClientQuit }

// ClientRCon runs a remote console command.
type ClientRCon struct {
	Password string
	Command  string
}

func (*ClientRCon) Type() PacketType { return TypeClientRCon }

func (m *ClientRCon) encode(p *packet.Packet) {
	p.PutString(m.Password)
	p.PutString(m.Command)
}

func (m *ClientRCon) decode(p *packet.Packet) {
	m.Password = p.Text()
	m.Command = p.Text()
}

// ClientMove asks to join another company.
type ClientMove struct {
	Company sim.CompanyID
}

func (*ClientMove) Type() PacketType { return TypeClientMove }

func (m *ClientMove) encode(p *packet.Packet) { p.PutUint8(uint8(m.Company)) }

func (m *ClientMove) decode(p *packet.Packet) { m.Company = sim.CompanyID(p.Uint8()) }
