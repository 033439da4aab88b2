package session

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lockstep/client/internal/journal"
	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
	"lockstep/client/logging/commands"
	"lockstep/client/logging/network"
	"lockstep/client/logging/simulation"
)

// counters tracks local progress against the server.
type counters struct {
	frame       uint32 // last frame run locally
	serverFrame uint32 // frame the server has reached
	maxFrame    uint32 // furthest frame the server allows
	firstFrame  uint32 // frame the map was saved at

	syncFrame   uint32
	syncSeed    uint32
	syncPending bool

	// lastAckFrame is the frame after which the next ack is due.
	lastAckFrame uint32
	token        uint8
	// firstSync is set until the first sync check passes; acks are held
	// back until then.
	firstSync bool
}

func (c *counters) restart(frame uint32) {
	*c = counters{
		frame:        frame,
		serverFrame:  frame,
		maxFrame:     frame,
		firstFrame:   frame,
		lastAckFrame: frame,
	}
}

func (c *counters) awaitFirstSync() {
	c.firstSync = true
}

func (c *counters) scheduleSync(frame, checksum uint32) {
	c.syncFrame = frame
	c.syncSeed = checksum
	c.syncPending = true
}

func (s *Session) onServerFrame(m *proto.Frame) error {
	s.frames.serverFrame = m.Frame
	s.frames.maxFrame = m.MaxFrame
	if m.HasToken {
		s.frames.token = m.Token
	}
	if m.HasChecksum {
		s.frames.scheduleSync(m.Frame, m.Checksum)
		if err := s.checkSync(); err != nil {
			return err
		}
	}
	return s.maybeAcknowledge()
}

func (s *Session) onSync(m *proto.Sync) error {
	s.frames.scheduleSync(m.Frame, m.Checksum)
	return s.checkSync()
}

func (s *Session) onServerCommand(m *proto.ServerCommand) error {
	err := s.incoming.Push(sim.Scheduled{Command: m.Command, Frame: m.Frame, Mine: m.Mine})
	if err != nil {
		return s.fail(&Reason{Kind: KindProtocolViolation, Code: proto.ErrorIllegalPacket, Detail: "command order", Err: err})
	}
	return nil
}

// maybeAcknowledge sends an Ack at most once per AckInterval frames, and
// never before the first sync check passed.
func (s *Session) maybeAcknowledge() error {
	if s.frames.firstSync || s.frames.lastAckFrame >= s.frames.frame {
		return nil
	}
	s.frames.lastAckFrame = s.frames.frame + s.opts.AckInterval
	return s.sendAck()
}

func (s *Session) sendAck() error {
	ack := &proto.Ack{Frame: s.frames.frame, Token: s.frames.token}
	if err := s.sendOrFail(ack); err != nil {
		return err
	}
	network.AckSent(s.ctx, s.deps.Publisher, s.frames.frame, s.actor,
		network.AckPayload{Frame: ack.Frame, Token: ack.Token}, nil)
	return nil
}

// gameLoop catches up with the server, bounded per call, or runs a single
// frame when the server allows it.
func (s *Session) gameLoop() error {
	if s.state != StateActive {
		return nil
	}
	ran := 0
	for s.frames.serverFrame > s.frames.frame {
		if ran >= s.opts.CatchUpMaxFrames {
			simulation.CatchUpBounded(s.ctx, s.deps.Publisher, s.frames.frame, s.actor, simulation.CatchUpPayload{
				Ran:    ran,
				Behind: s.frames.serverFrame - s.frames.frame,
			}, nil)
			return nil
		}
		if err := s.runFrame(); err != nil {
			return err
		}
		ran++
	}
	if ran == 0 && s.frames.maxFrame > s.frames.frame {
		return s.runFrame()
	}
	return nil
}

// runFrame advances the simulation by one frame: due commands first, then
// the simulation step, the sync check, the outgoing queue and the expiry
// sweep.
func (s *Session) runFrame() error {
	s.frames.frame++
	frame := s.frames.frame

	due, err := s.incoming.Release(frame)
	if err != nil {
		if errors.Is(err, sim.ErrCommandInPast) {
			return s.desync(frame, 0, 0, err)
		}
		return s.fail(&Reason{Kind: KindProtocolViolation, Code: proto.ErrorIllegalPacket, Err: err})
	}
	for _, item := range due {
		s.execute(item, frame)
	}

	s.deps.Simulation.AdvanceFrame()
	s.deps.Metrics.Add(framesRunMetricKey, 1)
	checksum := s.deps.Simulation.SyncChecksum()
	s.journal.Record(frame, checksum)

	if err := s.checkSync(); err != nil {
		return err
	}
	if _, err := s.outgoing.Advance(); err != nil {
		return s.fail(&Reason{Kind: KindConnectionLost, Code: proto.ErrorConnectionLost, Err: err})
	}
	if expired := s.callbacks.Sweep(frame); expired > 0 {
		commands.Expired(s.ctx, s.deps.Publisher, frame, s.actor, commands.ExpiredPayload{
			Count:    expired,
			Lifetime: s.callbacks.Lifetime(),
		}, nil)
	}
	return nil
}

func (s *Session) execute(item sim.Scheduled, frame uint32) {
	err := s.deps.Simulation.Execute(item.Command, frame)
	fp := s.opts.Fingerprinter.Fingerprint(item.Command)
	s.journal.NoteCommand(journal.CommandRecord{
		Fingerprint: fp,
		Action:      item.Command.Action.ID(),
		Company:     item.Command.Company,
		Mine:        item.Mine,
	})
	if !item.Mine {
		return
	}
	if s.callbacks.Resolve(fp, frame, err) {
		payload := commands.CommandPayload{
			Action:      uint32(item.Command.Action.ID()),
			Tile:        item.Command.Tile,
			Fingerprint: fp.String(),
		}
		if err != nil {
			payload.Error = err.Error()
		}
		commands.Resolved(s.ctx, s.deps.Publisher, frame, s.actor, payload, nil)
	}
}

// checkSync compares the scheduled server checksum once the local frame
// reaches it. A sync frame already passed cannot be checked and is dropped.
func (s *Session) checkSync() error {
	if !s.frames.syncPending {
		return nil
	}
	frame := s.frames.frame
	switch {
	case s.frames.syncFrame > frame:
		return nil
	case s.frames.syncFrame < frame:
		simulation.SyncMissed(s.ctx, s.deps.Publisher, frame, s.actor, simulation.SyncMissedPayload{
			SyncFrame:  s.frames.syncFrame,
			LocalFrame: frame,
		}, nil)
		s.frames.syncPending = false
		return nil
	}

	s.frames.syncPending = false
	local := s.deps.Simulation.SyncChecksum()
	if local != s.frames.syncSeed {
		return s.desync(frame, local, s.frames.syncSeed, nil)
	}
	if s.frames.firstSync {
		s.frames.firstSync = false
		s.frames.lastAckFrame = frame + s.opts.AckInterval
		return s.sendAck()
	}
	return nil
}

// desync reports diverged simulations and tears the session down.
func (s *Session) desync(frame, local, remote uint32, cause error) error {
	simulation.Desync(s.ctx, s.deps.Publisher, frame, s.actor, simulation.DesyncPayload{
		Frame:          frame,
		LocalChecksum:  local,
		ServerChecksum: remote,
		Recent:         s.journal.Entries(),
	}, nil)
	detail := fmt.Sprintf("frame %d local %08x server %08x", frame, local, remote)
	if cause != nil {
		detail = fmt.Sprintf("frame %d", frame)
	}
	return s.fail(&Reason{
		Kind:   KindDesync,
		Code:   proto.ErrorDesync,
		Detail: detail,
		Err:    cause,
	}, trace.WithAttributes(
		attribute.Int64("desync.frame", int64(frame)),
		attribute.Int64("desync.local", int64(local)),
		attribute.Int64("desync.server", int64(remote)),
	))
}

// runOfflineFrame advances a session without a server.
func (s *Session) runOfflineFrame() {
	s.frames.frame++
	s.deps.Simulation.AdvanceFrame()
	s.journal.Record(s.frames.frame, s.deps.Simulation.SyncChecksum())
}
