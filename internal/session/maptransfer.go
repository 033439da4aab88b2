package session

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lockstep/client/internal/mapxfer"
	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
	"lockstep/client/logging/simulation"
)

// onMapBegin starts a fresh game: everything queued for an earlier map is
// dropped and every frame counter restarts at the server's frame.
func (s *Session) onMapBegin(m *proto.MapBegin) error {
	s.callbacks.Cancel(s.frames.frame, sim.ErrDisconnected)
	s.dropUnsent(s.frames.frame, sim.ErrDisconnected)
	s.incoming.Reset()
	s.journal.Reset()
	s.snapshot.Reset()
	s.frames.restart(m.Frame)

	_, s.mapSpan = s.deps.Tracer.Start(s.ctx, "session.map_transfer")
	s.mapSpan.SetAttributes(attribute.Int64("map.start_frame", int64(m.Frame)))
	s.setState(StateMapTransfer)
	s.deps.UI.ReportStatus(Status{Phase: PhaseDownloading})
	return nil
}

func (s *Session) onMapData(m *proto.MapData) error {
	if err := s.snapshot.Append(m.Chunk); err != nil {
		return s.fail(&Reason{Kind: KindLoadFailed, Code: proto.ErrorSavegameFailed, Detail: "map download", Err: err})
	}
	s.deps.UI.ReportStatus(Status{
		Phase:    PhaseDownloading,
		Received: s.snapshot.Received(),
		Total:    s.snapshot.Total(),
	})
	return nil
}

// onMapDone hands the buffered snapshot to the simulation. Success makes
// the session active and picks a company.
func (s *Session) onMapDone() error {
	s.deps.UI.ReportStatus(Status{Phase: PhaseLoading})
	size := s.snapshot.Received()
	if err := s.loadSnapshot(); err != nil {
		s.endMapSpan(err)
		return s.fail(&Reason{Kind: KindLoadFailed, Code: proto.ErrorSavegameFailed, Detail: "load map", Err: err})
	}
	s.snapshot.Reset()
	s.endMapSpan(nil)

	if err := s.sendOrFail(&proto.MapOk{}); err != nil {
		return err
	}
	s.frames.awaitFirstSync()
	s.setState(StateActive)
	simulation.MapLoaded(s.ctx, s.deps.Publisher, s.frames.frame, s.actor,
		simulation.MapLoadedPayload{Frame: s.frames.frame, Bytes: size}, nil)
	s.deps.UI.MapLoaded()
	s.deps.UI.ReportStatus(Status{Phase: PhaseActive})
	return s.selectCompany()
}

func (s *Session) loadSnapshot() error {
	if s.snapshot.Received() == 0 {
		return errors.New("empty snapshot")
	}
	r, err := mapxfer.Open(s.snapshot)
	if err != nil {
		return err
	}
	if err := s.deps.Simulation.LoadSnapshot(r); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

func (s *Session) endMapSpan(err error) {
	if s.mapSpan == nil {
		return
	}
	s.mapSpan.SetAttributes(attribute.Int64("map.bytes", s.snapshot.Received()))
	if err != nil {
		s.mapSpan.RecordError(err)
		s.mapSpan.SetStatus(codes.Error, "load failed")
	}
	s.mapSpan.End()
	s.mapSpan = nil
}

// selectCompany joins the configured company, asks for a new one, or stays
// a spectator.
func (s *Session) selectCompany() error {
	switch company := s.opts.Company; {
	case company == sim.CompanyNew:
		_, err := s.SubmitCommand(sim.Command{
			Company: sim.CompanySpectator,
			Action:  sim.ActionCompanyCtrl,
			P1:      sim.CompanyCtrlNew,
			P2:      s.clientID,
		}, nil)
		if err != nil && s.reason == nil {
			s.deps.Logger.Printf("[session] new company request failed: %v", err)
		}
		return s.reasonOrNil()
	case company.Valid():
		return s.sendOrFail(&proto.ClientMove{Company: company})
	}
	return nil
}

func (s *Session) reasonOrNil() error {
	if s.reason != nil {
		return s.reason
	}
	return nil
}
