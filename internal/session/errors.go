package session

import (
	"errors"
	"fmt"
	"time"

	"lockstep/client/internal/net/proto"
)

// Kind classifies why a connection ended.
type Kind uint8

const (
	KindProtocolViolation Kind = iota + 1
	KindAuthFailure
	KindContentMismatch
	KindDesync
	KindServerDisconnect
	KindTimeout
	KindLoadFailed
	KindConnectionLost
	KindUserQuit
)

var kindNames = map[Kind]string{
	KindProtocolViolation: "protocol_violation",
	KindAuthFailure:       "auth_failure",
	KindContentMismatch:   "content_mismatch",
	KindDesync:            "desync",
	KindServerDisconnect:  "server_disconnect",
	KindTimeout:           "timeout",
	KindLoadFailed:        "load_failed",
	KindConnectionLost:    "connection_lost",
	KindUserQuit:          "user_quit",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind_%d", uint8(k))
}

var (
	// ErrOffline reports a network operation on a session without transport.
	ErrOffline = errors.New("session: no connection")
	// ErrAlreadyStarted reports a second Start call.
	ErrAlreadyStarted = errors.New("session: already started")
)

// Reason is the typed cause handed to the UI when a connection ends. It is
// returned by Step once the session is torn down.
type Reason struct {
	Kind Kind
	// Code is the protocol error code reported to or by the server.
	Code   proto.ErrorCode
	Detail string
	// Remote is set when the server announced the disconnect.
	Remote bool
	// Reconnect asks the host to dial again after ReconnectAfter.
	Reconnect      bool
	ReconnectAfter time.Duration
	Err            error
}

func (r *Reason) Error() string {
	msg := "session: " + r.Kind.String()
	if r.Detail != "" {
		msg += ": " + r.Detail
	}
	if r.Err != nil {
		msg += ": " + r.Err.Error()
	}
	return msg
}

func (r *Reason) Unwrap() error {
	return r.Err
}

// Fatal reports whether the reason is an error rather than a clean quit.
func (r *Reason) Fatal() bool {
	return r.Kind != KindUserQuit
}

// reportsToServer reports whether the client should tell the server why it
// is leaving.
func (r *Reason) reportsToServer() bool {
	if r.Remote {
		return false
	}
	switch r.Kind {
	case KindProtocolViolation, KindAuthFailure, KindContentMismatch, KindDesync, KindLoadFailed:
		return true
	}
	return false
}

// needsEmergencySave reports whether local state must be saved before it
// is dropped. A desync announced by the server only counts once a map was
// running.
func (r *Reason) needsEmergencySave(wasActive bool) bool {
	switch r.Kind {
	case KindDesync:
		return wasActive || !r.Remote
	case KindLoadFailed:
		return true
	case KindServerDisconnect:
		return wasActive
	}
	return false
}

// AsReason extracts a Reason from err.
func AsReason(err error) (*Reason, bool) {
	var reason *Reason
	if errors.As(err, &reason) {
		return reason, true
	}
	return nil, false
}

// remoteReason maps a server error code onto the taxonomy.
func remoteReason(code proto.ErrorCode, detail string) *Reason {
	kind := KindServerDisconnect
	switch code {
	case proto.ErrorWrongPassword, proto.ErrorNotAuthorized, proto.ErrorNoAuthMethod,
		proto.ErrorNotOnAllowList, proto.ErrorTimeoutPassword:
		kind = KindAuthFailure
	case proto.ErrorNewGRFMismatch:
		kind = KindContentMismatch
	case proto.ErrorDesync:
		kind = KindDesync
	}
	if detail == "" {
		detail = code.String()
	}
	return &Reason{Kind: kind, Code: code, Detail: detail, Remote: true}
}
