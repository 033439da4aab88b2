// Package session runs the client side of the lockstep protocol: the
// handshake, the map download, and the frame loop that executes server
// scheduled commands in step with every other client.
//
// A Session is driven from a single goroutine through Step. Nothing in it
// blocks; the transport delivers frames through a non-blocking poll.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"lockstep/client/internal/journal"
	"lockstep/client/internal/mapxfer"
	"lockstep/client/internal/net/crypto"
	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/net/transport"
	"lockstep/client/internal/sim"
	"lockstep/client/logging"
	"lockstep/client/logging/lifecycle"
	"lockstep/client/logging/network"
)

const (
	packetsReceivedMetricKey = "session_packets_received_total"
	packetsSentMetricKey     = "session_packets_sent_total"
	framesRunMetricKey       = "session_frames_run_total"
)

// Session is one connection to a server, from Join to teardown. A new
// connection needs a new Session.
type Session struct {
	ctx  context.Context
	opts Options
	deps Deps
	conn transport.Conn

	state    State
	clientID uint32
	channel  *crypto.Channel
	keys     crypto.SessionKeys
	method   proto.AuthMethod

	frames    counters
	outgoing  *sim.OutgoingQueue
	callbacks *sim.CallbackRegistry
	incoming  sim.IncomingQueue
	snapshot  *mapxfer.PacketReader
	journal   *journal.Journal
	roster    roster

	now        time.Time
	lastPacket time.Time
	lagNotice  *rate.Sometimes
	lagging    bool

	handshakeSpan trace.Span
	mapSpan       trace.Span

	reason *Reason
	actor  logging.EntityRef
	diag   atomic.Pointer[Diagnostics]
}

// New builds a session over deps.Conn. ctx bounds emergency saves and
// spans started by the session.
func New(ctx context.Context, opts Options, deps Deps) (*Session, error) {
	if deps.Simulation == nil {
		return nil, errors.New("session: simulation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()
	deps = deps.withDefaults()

	s := &Session{
		ctx:       ctx,
		opts:      opts,
		deps:      deps,
		conn:      deps.Conn,
		callbacks: sim.NewCallbackRegistry(opts.CallbackLifetime, deps.Metrics),
		snapshot:  mapxfer.NewPacketReader(opts.MaxMapBytes),
		journal:   journal.New(opts.JournalFrames, 0),
		roster:    make(roster),
		lagNotice: &rate.Sometimes{Interval: time.Second},
		actor:     logging.EntityRef{ID: opts.SessionID, Kind: logging.EntityKindSession},
	}
	s.outgoing = sim.NewOutgoingQueue(opts.CommandsPerFrame, sim.TransmitFunc(s.transmit), deps.Metrics)
	s.journal.SetClock(deps.Clock.Now)
	s.publishDiagnostics()
	return s, nil
}

// State reports the connection state.
func (s *Session) State() State {
	return s.state
}

// ClientID is the id assigned by Welcome.
func (s *Session) ClientID() uint32 {
	return s.clientID
}

// Frame is the last frame the local simulation completed.
func (s *Session) Frame() uint32 {
	return s.frames.frame
}

// Reason returns why the session ended, or nil while it is alive.
func (s *Session) Reason() *Reason {
	return s.reason
}

// PendingCallbacks reports how many fingerprints wait for an echo.
func (s *Session) PendingCallbacks() int {
	return s.callbacks.Len()
}

// QueuedCommands reports commands held back by the frame quota.
func (s *Session) QueuedCommands() int {
	return s.outgoing.Len()
}

// Start sends Join and begins the handshake.
func (s *Session) Start() error {
	if s.conn == nil {
		return ErrOffline
	}
	if s.state != StateDisconnected || s.reason != nil {
		return ErrAlreadyStarted
	}
	s.now = s.deps.Clock.Now()
	s.lastPacket = s.now
	_, s.handshakeSpan = s.deps.Tracer.Start(s.ctx, "session.handshake")
	if err := s.send(&proto.Join{ClientVersion: s.opts.ClientVersion, ProtocolVersion: proto.Version}); err != nil {
		return s.fail(&Reason{Kind: KindConnectionLost, Err: err})
	}
	s.setState(StateJoining)
	s.deps.UI.ReportStatus(Status{Phase: PhaseConnecting})
	return nil
}

// Step drains pending packets, runs due frames and checks liveness. It
// returns the teardown Reason once the session has ended; no frames run
// after that.
func (s *Session) Step(now time.Time) error {
	if s.reason != nil {
		return s.reason
	}
	s.now = now
	defer s.publishDiagnostics()

	if s.conn == nil {
		s.runOfflineFrame()
		return nil
	}
	if err := s.receive(); err != nil {
		return err
	}
	if err := s.gameLoop(); err != nil {
		return err
	}
	return s.checkLiveness()
}

func (s *Session) receive() error {
	for s.reason == nil {
		frame, err := s.conn.TryReceive()
		if err != nil {
			return s.fail(&Reason{Kind: KindConnectionLost, Code: proto.ErrorConnectionLost, Err: err})
		}
		if frame == nil {
			return nil
		}
		s.deps.Metrics.Add(packetsReceivedMetricKey, 1)
		s.lastPacket = s.now
		if s.lagging {
			s.lagging = false
			if s.state == StateActive {
				s.deps.UI.ReportStatus(Status{Phase: PhaseActive})
			}
		}
		if s.channel != nil {
			frame, err = s.channel.Receive.OpenFrame(frame)
			if err != nil {
				return s.fail(&Reason{Kind: KindProtocolViolation, Code: proto.ErrorIllegalPacket, Detail: "undecryptable packet", Err: err})
			}
		}
		msg, err := proto.Decode(frame)
		if err != nil {
			return s.fail(&Reason{Kind: KindProtocolViolation, Code: proto.ErrorIllegalPacket, Detail: "malformed packet", Err: err})
		}
		if err := s.handle(msg); err != nil {
			return err
		}
	}
	return s.reason
}

// send encodes msg, seals it once encryption is on, and writes it.
func (s *Session) send(msg proto.Message) error {
	if s.conn == nil {
		return ErrOffline
	}
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	if s.channel != nil {
		if frame, err = s.channel.Send.SealFrame(frame); err != nil {
			return fmt.Errorf("seal %s: %w", msg.Type(), err)
		}
	}
	if err := s.conn.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	s.deps.Metrics.Add(packetsSentMetricKey, 1)
	return nil
}

// sendOrFail sends msg and tears the session down if the transport is gone.
func (s *Session) sendOrFail(msg proto.Message) error {
	if err := s.send(msg); err != nil {
		return s.fail(&Reason{Kind: KindConnectionLost, Code: proto.ErrorConnectionLost, Err: err})
	}
	return nil
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	lifecycle.StateChanged(s.ctx, s.deps.Publisher, s.frames.frame, s.actor,
		lifecycle.StateChangedPayload{From: prev.String(), To: next.String()}, nil)
}

func (s *Session) reject(msg proto.Message) error {
	network.PacketRejected(s.ctx, s.deps.Publisher, s.frames.frame, s.actor, network.PacketRejectedPayload{
		Packet: msg.Type().String(),
		State:  s.state.String(),
	}, nil)
	return s.fail(&Reason{
		Kind:   KindProtocolViolation,
		Code:   proto.ErrorNotExpected,
		Detail: fmt.Sprintf("%s in state %s", msg.Type(), s.state),
	})
}
