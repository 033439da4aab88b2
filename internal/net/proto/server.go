package proto

import (
	"lockstep/client/internal/net/packet"
	"lockstep/client/internal/sim"
)

// Full rejects the join because every slot is taken.
type Full struct{ empty }

func (*Full) Type() PacketType { return TypeServerFull }

// Banned rejects the join because the client is banned.
type Banned struct{ empty }

func (*Banned) Type() PacketType { return TypeServerBanned }

// ServerError ends the connection. Message is only present for kicks.
type ServerError struct {
	Code    ErrorCode
	Message string
}

func (*ServerError) Type() PacketType { return TypeServerError }

func (m *ServerError) encode(p *packet.Packet) {
	p.PutUint8(uint8(m.Code))
	if m.Message != "" {
		p.PutString(m.Message)
	}
}

func (m *ServerError) decode(p *packet.Packet) {
	m.Code = ErrorCode(p.Uint8())
	if p.CanRead(1) {
		m.Message = p.Text()
	}
}

// NewGame announces a server restart.
type NewGame struct{ empty }

func (*NewGame) Type() PacketType { return TypeServerNewGame }

// Shutdown announces the server is going away.
type Shutdown struct{ empty }

func (*Shutdown) Type() PacketType { return TypeServerShutdown }

// GRFIdentifier names one content package.
type GRFIdentifier struct {
	ID  uint32
	MD5 [16]byte
}

// CheckNewGRFs lists the content the snapshot requires.
type CheckNewGRFs struct {
	GRFs []GRFIdentifier
}

func (*CheckNewGRFs) Type() PacketType { return TypeServerCheckNewGRFs }

func (m *CheckNewGRFs) encode(p *packet.Packet) {
	p.PutUint8(uint8(len(m.GRFs)))
	for _, grf := range m.GRFs {
		p.PutUint32(grf.ID)
		p.PutBytes(grf.MD5[:])
	}
}

func (m *CheckNewGRFs) decode(p *packet.Packet) {
	n := int(p.Uint8())
	m.GRFs = make([]GRFIdentifier, 0, n)
	for i := 0; i < n && p.Err() == nil; i++ {
		var grf GRFIdentifier
		grf.ID = p.Uint32()
		p.Bytes(grf.MD5[:])
		m.GRFs = append(m.GRFs, grf)
	}
}

// AuthRequest starts the key exchange.
type AuthRequest struct {
	Method    AuthMethod
	PublicKey [KeySize]byte
	Nonce     [NonceSize]byte
}

func (*AuthRequest) Type() PacketType { return TypeServerAuthRequest }

func (m *AuthRequest) encode(p *packet.Packet) {
	p.PutUint8(uint8(m.Method))
	p.PutBytes(m.PublicKey[:])
	p.PutBytes(m.Nonce[:])
}

func (m *AuthRequest) decode(p *packet.Packet) {
	m.Method = AuthMethod(p.Uint8())
	p.Bytes(m.PublicKey[:])
	p.Bytes(m.Nonce[:])
}

// EnableEncryption switches both directions to the derived keys.
type EnableEncryption struct {
	Nonce [NonceSize]byte
}

func (*EnableEncryption) Type() PacketType { return TypeServerEnableEncryption }

func (m *EnableEncryption) encode(p *packet.Packet) { p.PutBytes(m.Nonce[:]) }

func (m *EnableEncryption) decode(p *packet.Packet) { p.Bytes(m.Nonce[:]) }

// Welcome assigns the client id.
type Welcome struct {
	ClientID uint32
}

func (*Welcome) Type() PacketType { return TypeServerWelcome }

func (m *Welcome) encode(p *packet.Packet) { p.PutUint32(m.ClientID) }

func (m *Welcome) decode(p *packet.Packet) { m.ClientID = p.Uint32() }

// ClientInfo describes one connected client.
type ClientInfo struct {
	ClientID  uint32
	Company   sim.CompanyID
	Name      string
	PublicKey string
}

func (*ClientInfo) Type() PacketType { return TypeServerClientInfo }

func (m *ClientInfo) encode(p *packet.Packet) {
	p.PutUint32(m.ClientID)
	p.PutUint8(uint8(m.Company))
	p.PutString(m.Name)
	p.PutString(m.PublicKey)
}

func (m *ClientInfo) decode(p *packet.Packet) {
	m.ClientID = p.Uint32()
	m.Company = sim.CompanyID(p.Uint8())
	m.Name = p.Text()
	m.PublicKey = p.Text()
}

// Wait reports how many clients are ahead in the map queue.
type Wait struct {
	Waiting uint8
}

func (*Wait) Type() PacketType { return TypeServerWait }

func (m *Wait) encode(p *packet.Packet) { p.PutUint8(m.Waiting) }

func (m *Wait) decode(p *packet.Packet) { m.Waiting = p.Uint8() }

// MapBegin starts a snapshot transfer at the given frame.
type MapBegin struct {
	Frame uint32
}

func (*MapBegin) Type() PacketType { return TypeServerMapBegin }

func (m *MapBegin) encode(p *packet.Packet) { p.PutUint32(m.Frame) }

func (m *MapBegin) decode(p *packet.Packet) { m.Frame = p.Uint32() }

// MapSize hints the snapshot length in bytes.
type MapSize struct {
	Bytes uint32
}

func (*MapSize) Type() PacketType { return TypeServerMapSize }

func (m *MapSize) encode(p *packet.Packet) { p.PutUint32(m.Bytes) }

func (m *MapSize) decode(p *packet.Packet) { m.Bytes = p.Uint32() }

// MapData carries one chunk of the snapshot.
type MapData struct {
	Chunk []byte
}

func (*MapData) Type() PacketType { return TypeServerMapData }

func (m *MapData) encode(p *packet.Packet) { p.PutBytes(m.Chunk) }

func (m *MapData) decode(p *packet.Packet) { m.Chunk = p.Rest() }

// MapDone ends the snapshot transfer.
type MapDone struct{ empty }

func (*MapDone) Type() PacketType { return TypeServerMapDone }

// ServerJoin announces a client that finished joining.
type ServerJoin struct {
	ClientID uint32
}

func (*ServerJoin) Type() PacketType { return TypeServerJoin }

func (m *ServerJoin) encode(p *packet.Packet) { p.PutUint32(m.ClientID) }

func (m *ServerJoin) decode(p *packet.Packet) { m.ClientID = p.Uint32() }

// Frame advances the server frame and the frame the client may run to. The
// checksum and token are optional trailing fields.
type Frame struct {
	Frame       uint32
	MaxFrame    uint32
	Checksum    uint32
	HasChecksum bool
	Token       uint8
	HasToken    bool
}

func (*Frame) Type() PacketType { return TypeServerFrame }

func (m *Frame) encode(p *packet.Packet) {
	p.PutUint32(m.Frame)
	p.PutUint32(m.MaxFrame)
	if m.HasChecksum {
		p.PutUint32(m.Checksum)
	}
	if m.HasToken {
		p.PutUint8(m.Token)
	}
}

func (m *Frame) decode(p *packet.Packet) {
	m.Frame = p.Uint32()
	m.MaxFrame = p.Uint32()
	if p.CanRead(4) {
		m.Checksum = p.Uint32()
		m.HasChecksum = true
	}
	if p.CanRead(1) {
		m.Token = p.Uint8()
		m.HasToken = true
	}
}

// Sync requests a checksum comparison at Frame.
type Sync struct {
	Frame    uint32
	Checksum uint32
}

func (*Sync) Type() PacketType { return TypeServerSync }

func (m *Sync) encode(p *packet.Packet) {
	p.PutUint32(m.Frame)
	p.PutUint32(m.Checksum)
}

func (m *Sync) decode(p *packet.Packet) {
	m.Frame = p.Uint32()
	m.Checksum = p.Uint32()
}

// ServerCommand is the echo of a command with the frame it runs on. Mine is
// set on the copy sent back to the issuing client.
type ServerCommand struct {
	Command sim.Command
	Frame   uint32
	Mine    bool
}

func (*ServerCommand) Type() PacketType { return TypeServerCommand }

func (m *ServerCommand) encode(p *packet.Packet) {
	putCommand(p, m.Command)
	p.PutUint32(m.Frame)
	p.PutBool(m.Mine)
}

func (m *ServerCommand) decode(p *packet.Packet) {
	m.Command = readCommand(p)
	m.Frame = p.Uint32()
	m.Mine = p.Bool()
}

// ServerChat relays a chat line.
type ServerChat struct {
	Action   ChatAction
	ClientID uint32
	Self     bool
	Text     string
	Data     uint64
}

func (*ServerChat) Type() PacketType { return TypeServerChat }

func (m *ServerChat) encode(p *packet.Packet) {
	p.PutUint8(uint8(m.Action))
	p.PutUint32(m.ClientID)
	p.PutBool(m.Self)
	p.PutString(m.Text)
	p.PutUint64(m.Data)
}

func (m *ServerChat) decode(p *packet.Packet) {
	m.Action = ChatAction(p.Uint8())
	m.ClientID = p.Uint32()
	m.Self = p.Bool()
	m.Text = p.Text()
	m.Data = p.Uint64()
}

// ServerRCon carries remote console output.
type ServerRCon struct {
	Colour uint16
	Text   string
}

func (*ServerRCon) Type() PacketType { return TypeServerRCon }

func (m *ServerRCon) encode(p *packet.Packet) {
	p.PutUint16(m.Colour)
	p.PutString(m.Text)
}

func (m *ServerRCon) decode(p *packet.Packet) {
	m.Colour = p.Uint16()
	m.Text = p.Text()
}

// ServerMove reports a client switching company.
type ServerMove struct {
	ClientID uint32
	Company  sim.CompanyID
}

func (*ServerMove) Type() PacketType { return TypeServerMove }

func (m *ServerMove) encode(p *packet.Packet) {
	p.PutUint32(m.ClientID)
	p.PutUint8(uint8(m.Company))
}

func (m *ServerMove) decode(p *packet.Packet) {
	m.ClientID = p.Uint32()
	m.Company = sim.CompanyID(p.Uint8())
}

// ConfigUpdate carries server settings the client displays.
type ConfigUpdate struct {
	MaxCompanies uint8
	ServerName   string
}

func (*ConfigUpdate) Type() PacketType { return TypeServerConfigUpdate }

func (m *ConfigUpdate) encode(p *packet.Packet) {
	p.PutUint8(m.MaxCompanies)
	p.PutString(m.ServerName)
}

func (m *ConfigUpdate) decode(p *packet.Packet) {
	m.MaxCompanies = p.Uint8()
	m.ServerName = p.Text()
}

// ServerQuit reports a client leaving cleanly.
type ServerQuit struct {
	ClientID uint32
}

func (*ServerQuit) Type() PacketType { return TypeServerQuit }

func (m *ServerQuit) encode(p *packet.Packet) { p.PutUint32(m.ClientID) }

func (m *ServerQuit) decode(p *packet.Packet) { m.ClientID = p.Uint32() }

// ErrorQuit reports a client dropped with an error.
type ErrorQuit struct {
	ClientID uint32
	Code     ErrorCode
}

func (*ErrorQuit) Type() PacketType { return TypeServerErrorQuit }

func (m *ErrorQuit) encode(p *packet.Packet) {
	p.PutUint32(m.ClientID)
	p.PutUint8(uint8(m.Code))
}

func (m *ErrorQuit) decode(p *packet.Packet) {
	m.ClientID = p.Uint32()
	m.Code = ErrorCode(p.Uint8())
}
