package session

import "fmt"

// State is how far the connection has progressed.
type State uint8

const (
	StateDisconnected State = iota
	StateJoining
	StateNewGRFsCheck
	StateAuthenticating
	StateEncrypted
	StateAuthorized
	StateMapWait
	StateMapTransfer
	StateActive
	StateErrored
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateJoining:        "joining",
	StateNewGRFsCheck:   "newgrfs_check",
	StateAuthenticating: "authenticating",
	StateEncrypted:      "encrypted",
	StateAuthorized:     "authorized",
	StateMapWait:        "map_wait",
	StateMapTransfer:    "map_transfer",
	StateActive:         "active",
	StateErrored:        "errored",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state_%d", uint8(s))
}

// joined reports whether the server has accepted the client.
func (s State) joined() bool {
	return s >= StateAuthorized && s <= StateActive
}

// connected reports whether a transport is in use.
func (s State) connected() bool {
	return s != StateDisconnected && s != StateErrored
}
