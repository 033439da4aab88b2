package session

import (
	"time"

	"lockstep/client/internal/mapxfer"
	"lockstep/client/internal/net/crypto"
	"lockstep/client/internal/sim"
)

// Defaults for Options fields left zero.
const (
	DefaultAckInterval      uint32 = 74
	DefaultCatchUpMaxFrames        = 100
	DefaultLagWarning              = 5 * time.Second
	DefaultLagTimeout              = 20 * time.Second
	DefaultErrorGrace              = 200 * time.Millisecond
	DefaultReconnectDelay          = 10 * time.Second
	DefaultJournalFrames           = 256
)

// Options tunes a session.
type Options struct {
	// SessionID tags published events. Defaults to "local".
	SessionID     string
	ClientName    string
	ClientVersion string
	// Company is what to play after the map loads: a company slot,
	// sim.CompanyNew or sim.CompanySpectator.
	Company sim.CompanyID

	Authenticator crypto.Authenticator
	Fingerprinter sim.Fingerprinter
	// Formats lists snapshot formats to advertise, best first.
	Formats []string

	CommandsPerFrame int
	CallbackLifetime uint32
	// AckInterval is how many frames pass between acknowledgements.
	AckInterval      uint32
	CatchUpMaxFrames int
	LagWarning       time.Duration
	LagTimeout       time.Duration
	ErrorGrace       time.Duration
	ReconnectDelay   time.Duration
	MaxMapBytes      int64
	JournalFrames    int
}

func (o Options) withDefaults() Options {
	if o.SessionID == "" {
		o.SessionID = "local"
	}
	if o.ClientName == "" {
		o.ClientName = "Player"
	}
	if len(o.Formats) == 0 {
		o.Formats = mapxfer.SupportedFormats()
	}
	if o.Fingerprinter == nil {
		o.Fingerprinter = sim.DefaultFingerprinter
	}
	if o.CommandsPerFrame <= 0 {
		o.CommandsPerFrame = sim.DefaultCommandsPerFrame
	}
	if o.CallbackLifetime == 0 {
		o.CallbackLifetime = sim.DefaultCallbackLifetime
	}
	if o.AckInterval == 0 {
		o.AckInterval = DefaultAckInterval
	}
	if o.CatchUpMaxFrames <= 0 {
		o.CatchUpMaxFrames = DefaultCatchUpMaxFrames
	}
	if o.LagWarning <= 0 {
		o.LagWarning = DefaultLagWarning
	}
	if o.LagTimeout <= 0 {
		o.LagTimeout = DefaultLagTimeout
	}
	if o.ErrorGrace <= 0 {
		o.ErrorGrace = DefaultErrorGrace
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.JournalFrames == 0 {
		o.JournalFrames = DefaultJournalFrames
	}
	return o
}
