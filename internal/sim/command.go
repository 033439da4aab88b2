package sim

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Action is the command code carried on the wire. The low bits identify the
// command; the high bits are transport-only flags added by the sender or the
// server and never take part in matching.
type Action uint32

const (
	// ActionIDMask selects the bits that identify the command.
	ActionIDMask Action = 0x0000FFFF
	// ActionFlagNetwork marks a command that arrived over the network.
	ActionFlagNetwork Action = 1 << 31
	// ActionMessageMask carries the UI error-message id shown on failure.
	ActionMessageMask Action = 0x7FFF0000
)

// ActionCompanyCtrl creates, removes or merges companies. P1 selects the
// sub-action, P2 the client the company is created for.
const ActionCompanyCtrl Action = 0x0046

// CompanyCtrlNew is the P1 value requesting a brand new company.
const CompanyCtrlNew uint32 = 0

// ID strips the transport-only bits.
func (a Action) ID() Action {
	return a & ActionIDMask
}

// CompanyID identifies a company slot. Values above MaxCompanies are
// reserved markers.
type CompanyID uint8

const (
	MaxCompanies     CompanyID = 15
	CompanyNew       CompanyID = 254
	CompanySpectator CompanyID = 255
)

// Valid reports whether the id names a real company slot.
func (c CompanyID) Valid() bool {
	return c < MaxCompanies
}

func (c CompanyID) String() string {
	switch c {
	case CompanyNew:
		return "new"
	case CompanySpectator:
		return "spectator"
	default:
		return fmt.Sprintf("company-%d", uint8(c)+1)
	}
}

// MaxCommandText bounds the free-text parameter of a command.
const MaxCommandText = 255

// Command is a request to change the game state. It is a plain value and is
// never mutated once built.
type Command struct {
	Company CompanyID
	Action  Action
	Tile    uint32
	P1      uint32
	P2      uint32
	P3      uint64
	Text    string
}

// Validate rejects commands that cannot be serialized.
func (c Command) Validate() error {
	if c.Action.ID() == 0 {
		return ErrInvalidCommand
	}
	if len(c.Text) > MaxCommandText {
		return fmt.Errorf("%w: text length %d", ErrInvalidCommand, len(c.Text))
	}
	if !wireSafe(c.Text) {
		return fmt.Errorf("%w: text %q does not survive transmission", ErrInvalidCommand, c.Text)
	}
	return nil
}

// wireSafe reports whether text reaches the server and comes back in the
// echo byte for byte. Strings are NUL terminated on the wire and the
// receiving side drops invalid UTF-8 and control characters except newline.
func wireSafe(text string) bool {
	if !utf8.ValidString(text) {
		return false
	}
	return !strings.ContainsFunc(text, func(r rune) bool {
		return unicode.IsControl(r) && r != '\n'
	})
}

var (
	// ErrInvalidCommand reports a command that cannot be submitted.
	ErrInvalidCommand = errors.New("sim: invalid command")
	// ErrCallbackExpired is delivered to callbacks whose echo never arrived
	// within the registry lifetime.
	ErrCallbackExpired = errors.New("sim: command echo not received in time")
	// ErrDisconnected is delivered to callbacks still pending when the
	// connection is torn down.
	ErrDisconnected = errors.New("sim: connection closed before command executed")
	// ErrNotConnected rejects submissions while the session cannot send.
	ErrNotConnected = errors.New("sim: session is not accepting commands")
)

// Result is handed to a completion callback exactly once.
type Result struct {
	Command Command
	Frame   uint32
	Err     error
}

// Succeeded reports whether the command executed without error.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Callback receives the outcome of a locally issued command.
type Callback func(Result)
