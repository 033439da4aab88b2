package session

import (
	"fmt"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
	"lockstep/client/logging/commands"
)

// SubmitCommand sends cmd to the server. cb runs when the server's echo
// executes, when the echo fails to arrive within the callback lifetime of
// the frame the command was sent in, or when the connection ends. Without a connection
// the command executes at once and cb runs before SubmitCommand returns.
func (s *Session) SubmitCommand(cmd sim.Command, cb sim.Callback) (sim.SubmitStatus, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}
	if s.conn == nil {
		frame := s.frames.frame
		err := s.deps.Simulation.Execute(cmd, frame)
		if cb != nil {
			cb(sim.Result{Command: cmd, Frame: frame, Err: err})
		}
		return sim.SubmitAccepted, nil
	}
	if s.state != StateActive {
		return 0, fmt.Errorf("%w: %s", sim.ErrNotConnected, s.state)
	}

	status, err := s.outgoing.Submit(cmd, cb)
	if err != nil {
		return 0, s.fail(&Reason{Kind: KindConnectionLost, Code: proto.ErrorConnectionLost, Err: err})
	}
	if status == sim.SubmitQueued {
		fp := s.opts.Fingerprinter.Fingerprint(cmd)
		commands.Queued(s.ctx, s.deps.Publisher, s.frames.frame, s.actor, commands.CommandPayload{
			Action:      uint32(cmd.Action.ID()),
			Tile:        cmd.Tile,
			Fingerprint: fp.String(),
			Backlog:     s.outgoing.Len(),
		}, nil)
	}
	return status, nil
}

// transmit registers the callback against the frame the command leaves in,
// then sends it. A send failure tears the session down, which fails the
// registration with the rest.
func (s *Session) transmit(item sim.Outgoing) error {
	fp := s.opts.Fingerprinter.Fingerprint(item.Command)
	s.callbacks.Register(fp, item.Command, s.frames.frame, item.Callback)
	return s.send(&proto.ClientCommand{Command: item.Command})
}

// dropUnsent empties the outgoing queue and fails the callbacks of commands
// that never left it.
func (s *Session) dropUnsent(frame uint32, err error) int {
	dropped := s.outgoing.Reset()
	for _, item := range dropped {
		if item.Callback != nil {
			item.Callback(sim.Result{Command: item.Command, Frame: frame, Err: err})
		}
	}
	return len(dropped)
}

// SendChat sends a chat message.
func (s *Session) SendChat(action proto.ChatAction, dest proto.DestType, target uint32, text string, data uint64) error {
	if err := s.requireJoined(); err != nil {
		return err
	}
	return s.sendOrFail(&proto.ClientChat{Action: action, Dest: dest, Target: target, Text: text, Data: data})
}

// SetName asks the server to rename this client.
func (s *Session) SetName(name string) error {
	if err := s.requireJoined(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("session: empty client name")
	}
	s.opts.ClientName = name
	return s.sendOrFail(&proto.SetName{Name: name})
}

// RCon runs a console command on the server.
func (s *Session) RCon(password, command string) error {
	if err := s.requireJoined(); err != nil {
		return err
	}
	return s.sendOrFail(&proto.ClientRCon{Password: password, Command: command})
}

// MoveToCompany asks to play as company, or to spectate.
func (s *Session) MoveToCompany(company sim.CompanyID) error {
	if s.conn == nil {
		return ErrOffline
	}
	if s.state != StateActive {
		return fmt.Errorf("%w: %s", sim.ErrNotConnected, s.state)
	}
	if !company.Valid() && company != sim.CompanySpectator {
		return fmt.Errorf("session: cannot move to %s", company)
	}
	return s.sendOrFail(&proto.ClientMove{Company: company})
}

// Quit leaves the server. Pending callbacks fail with sim.ErrDisconnected.
func (s *Session) Quit() error {
	if s.conn == nil {
		return ErrOffline
	}
	if !s.state.connected() {
		return nil
	}
	_ = s.fail(&Reason{Kind: KindUserQuit, Detail: "quit"})
	return nil
}

func (s *Session) requireJoined() error {
	if s.conn == nil {
		return ErrOffline
	}
	if !s.state.joined() {
		return fmt.Errorf("%w: %s", sim.ErrNotConnected, s.state)
	}
	return nil
}
