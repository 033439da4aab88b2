package session

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
	"lockstep/client/logging/lifecycle"
)

// fail is the single teardown path. It tells the server why the client is
// leaving, closes the transport after the grace delay, saves the game when
// required, fails every pending callback, clears all per-connection state
// and reports the reason to the UI. Only the first call has any effect;
// the returned error is the stored Reason.
func (s *Session) fail(reason *Reason, desyncOpts ...trace.EventOption) error {
	if s.reason != nil {
		return s.reason
	}
	s.reason = reason
	wasActive := s.state == StateActive
	frame := s.frames.frame

	_, span := s.deps.Tracer.Start(s.ctx, "session.teardown", trace.WithAttributes(
		attribute.String("reason.kind", reason.Kind.String()),
		attribute.String("reason.code", reason.Code.String()),
		attribute.Int64("frame", int64(frame)),
	))
	defer span.End()
	if reason.Kind == KindDesync {
		span.AddEvent("desync", desyncOpts...)
	}

	if s.conn != nil {
		switch {
		case reason.Kind == KindUserQuit:
			_ = s.send(&proto.ClientQuit{})
		case reason.reportsToServer():
			_ = s.send(&proto.ClientError{Code: reason.Code})
		}
		if reason.Kind == KindConnectionLost {
			_ = s.conn.Close()
		} else {
			s.conn.CloseAfter(s.opts.ErrorGrace)
		}
	}

	if reason.needsEmergencySave(wasActive) {
		s.emergencySave(frame, reason)
	}

	disconnected := fmt.Errorf("%w: %s", sim.ErrDisconnected, reason.Kind)
	cancelled := s.callbacks.Cancel(frame, disconnected)
	cancelled += s.dropUnsent(frame, disconnected)
	if cancelled > 0 {
		s.deps.Logger.Printf("[session] failed %d pending command callbacks on %s", cancelled, reason.Kind)
	}
	s.incoming.Reset()
	s.roster = make(roster)
	s.journal.Reset()
	s.snapshot.Reset()
	s.channel = nil
	s.frames = counters{}
	s.endOpenSpans()

	if reason.Kind == KindUserQuit {
		s.setState(StateDisconnected)
	} else {
		s.setState(StateErrored)
		s.deps.UI.ReportError(reason.Kind, reason.Detail)
	}
	payload := lifecycle.DisconnectedPayload{
		Kind:      reason.Kind.String(),
		Detail:    reason.Detail,
		Reconnect: reason.Reconnect,
	}
	if reason.Code != proto.ErrorGeneral || reason.Kind == KindServerDisconnect {
		payload.Code = reason.Code.String()
	}
	lifecycle.Disconnected(s.ctx, s.deps.Publisher, frame, s.actor, payload, reason.Fatal(), nil)
	s.deps.UI.Disconnected(reason)
	return reason
}

func (s *Session) emergencySave(frame uint32, reason *Reason) {
	payload := lifecycle.EmergencySavePayload{Reason: reason.Kind.String()}
	if s.deps.Saver == nil {
		payload.Error = "no emergency saver configured"
	} else if err := s.deps.Saver.EmergencySave(s.ctx, EmergencySave{
		Frame:    frame,
		Reason:   reason,
		Snapshot: s.deps.Simulation.Save,
	}); err != nil {
		payload.Error = err.Error()
		s.deps.Logger.Printf("[session] emergency save at frame %d failed: %v", frame, err)
	}
	lifecycle.EmergencySave(s.ctx, s.deps.Publisher, frame, s.actor, payload, nil)
}

func (s *Session) endOpenSpans() {
	if s.handshakeSpan != nil {
		s.handshakeSpan.End()
		s.handshakeSpan = nil
	}
	if s.mapSpan != nil {
		s.mapSpan.End()
		s.mapSpan = nil
	}
}
