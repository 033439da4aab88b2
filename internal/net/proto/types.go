package proto

import "fmt"

// PacketType is the type byte following the size header.
type PacketType uint8

// Server to client packets.
const (
	TypeServerFull             PacketType = 0
	TypeServerBanned           PacketType = 1
	TypeServerError            PacketType = 3
	TypeServerNewGame          PacketType = 8
	TypeServerShutdown         PacketType = 9
	TypeServerCheckNewGRFs     PacketType = 10
	TypeServerAuthRequest      PacketType = 12
	TypeServerEnableEncryption PacketType = 14
	TypeServerWelcome          PacketType = 16
	TypeServerClientInfo       PacketType = 17
	TypeServerWait             PacketType = 19
	TypeServerMapBegin         PacketType = 20
	TypeServerMapSize          PacketType = 21
	TypeServerMapData          PacketType = 22
	TypeServerMapDone          PacketType = 23
	TypeServerJoin             PacketType = 25
	TypeServerFrame            PacketType = 26
	TypeServerSync             PacketType = 28
	TypeServerCommand          PacketType = 30
	TypeServerChat             PacketType = 32
	TypeServerRCon             PacketType = 35
	TypeServerMove             PacketType = 37
	TypeServerConfigUpdate     PacketType = 39
	TypeServerQuit             PacketType = 41
	TypeServerErrorQuit        PacketType = 43
)

// Client to server packets.
const (
	TypeClientJoin           PacketType = 2
	TypeClientNewGRFsChecked PacketType = 11
	TypeClientAuthResponse   PacketType = 13
	TypeClientIdentify       PacketType = 15
	TypeClientGetMap         PacketType = 18
	TypeClientMapOk          PacketType = 24
	TypeClientAck            PacketType = 27
	TypeClientCommand        PacketType = 29
	TypeClientChat           PacketType = 31
	TypeClientRCon           PacketType = 34
	TypeClientMove           PacketType = 36
	TypeClientSetName        PacketType = 38
	TypeClientQuit           PacketType = 40
	TypeClientError          PacketType = 42
)

var packetTypeNames = map[PacketType]string{
	TypeServerFull:             "server_full",
	TypeServerBanned:           "server_banned",
	TypeClientJoin:             "client_join",
	TypeServerError:            "server_error",
	TypeServerNewGame:          "server_newgame",
	TypeServerShutdown:         "server_shutdown",
	TypeServerCheckNewGRFs:     "server_check_newgrfs",
	TypeClientNewGRFsChecked:   "client_newgrfs_checked",
	TypeServerAuthRequest:      "server_auth_request",
	TypeClientAuthResponse:     "client_auth_response",
	TypeServerEnableEncryption: "server_enable_encryption",
	TypeClientIdentify:         "client_identify",
	TypeServerWelcome:          "server_welcome",
	TypeServerClientInfo:       "server_client_info",
	TypeClientGetMap:           "client_getmap",
	TypeServerWait:             "server_wait",
	TypeServerMapBegin:         "server_map_begin",
	TypeServerMapSize:          "server_map_size",
	TypeServerMapData:          "server_map_data",
	TypeServerMapDone:          "server_map_done",
	TypeClientMapOk:            "client_map_ok",
	TypeServerJoin:             "server_join",
	TypeServerFrame:            "server_frame",
	TypeClientAck:              "client_ack",
	TypeServerSync:             "server_sync",
	TypeClientCommand:          "client_command",
	TypeServerCommand:          "server_command",
	TypeClientChat:             "client_chat",
	TypeServerChat:             "server_chat",
	TypeClientRCon:             "client_rcon",
	TypeServerRCon:             "server_rcon",
	TypeClientMove:             "client_move",
	TypeServerMove:             "server_move",
	TypeClientSetName:          "client_set_name",
	TypeServerConfigUpdate:     "server_config_update",
	TypeClientQuit:             "client_quit",
	TypeServerQuit:             "server_quit",
	TypeClientError:            "client_error",
	TypeServerErrorQuit:        "server_error_quit",
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("packet_%d", uint8(t))
}

// ErrorCode is carried by error packets in both directions.
type ErrorCode uint8

const (
	ErrorGeneral ErrorCode = iota
	ErrorDesync
	ErrorSavegameFailed
	ErrorConnectionLost
	ErrorIllegalPacket
	ErrorNewGRFMismatch
	ErrorNotAuthorized
	ErrorNotExpected
	ErrorWrongRevision
	ErrorNameInUse
	ErrorWrongPassword
	ErrorCompanyMismatch
	ErrorKicked
	ErrorCheater
	ErrorFull
	ErrorTooManyCommands
	ErrorTimeoutPassword
	ErrorTimeoutComputer
	ErrorTimeoutMap
	ErrorTimeoutJoin
	ErrorInvalidClientName
	ErrorNotOnAllowList
	ErrorNoAuthMethod
)

var errorCodeNames = [...]string{
	ErrorGeneral:           "general",
	ErrorDesync:            "desync",
	ErrorSavegameFailed:    "savegame_failed",
	ErrorConnectionLost:    "connection_lost",
	ErrorIllegalPacket:     "illegal_packet",
	ErrorNewGRFMismatch:    "newgrf_mismatch",
	ErrorNotAuthorized:     "not_authorized",
	ErrorNotExpected:       "not_expected",
	ErrorWrongRevision:     "wrong_revision",
	ErrorNameInUse:         "name_in_use",
	ErrorWrongPassword:     "wrong_password",
	ErrorCompanyMismatch:   "company_mismatch",
	ErrorKicked:            "kicked",
	ErrorCheater:           "cheater",
	ErrorFull:              "full",
	ErrorTooManyCommands:   "too_many_commands",
	ErrorTimeoutPassword:   "timeout_password",
	ErrorTimeoutComputer:   "timeout_computer",
	ErrorTimeoutMap:        "timeout_map",
	ErrorTimeoutJoin:       "timeout_join",
	ErrorInvalidClientName: "invalid_client_name",
	ErrorNotOnAllowList:    "not_on_allow_list",
	ErrorNoAuthMethod:      "no_auth_method",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("error_%d", uint8(c))
}

// AuthMethod selects the key exchange requested by the server.
type AuthMethod uint8

const (
	AuthKeyExchangeOnly AuthMethod = iota
	AuthX25519PAKE
	AuthX25519AuthorizedKey
)

func (m AuthMethod) String() string {
	switch m {
	case AuthKeyExchangeOnly:
		return "key_exchange_only"
	case AuthX25519PAKE:
		return "x25519_pake"
	case AuthX25519AuthorizedKey:
		return "x25519_authorized_key"
	default:
		return fmt.Sprintf("auth_%d", uint8(m))
	}
}

// ChatAction describes what a chat packet announces.
type ChatAction uint8

const (
	ChatJoin ChatAction = iota
	ChatLeave
	ChatServerMessage
	ChatMessage
	ChatCompany
	ChatClient
	ChatGiveMoney
	ChatNameChange
	ChatCompanySpectator
	ChatCompanyJoin
	ChatCompanyNew
	ChatKicked
	ChatExternal
)

// DestType addresses a chat message.
type DestType uint8

const (
	DestBroadcast DestType = iota
	DestTeam
	DestClient
)

// Version is the protocol revision sent in Join.
const Version uint8 = 1

// Lengths of the fixed-size authentication fields.
const (
	KeySize   = 32
	NonceSize = 24
)
