package session

import (
	"fmt"

	"lockstep/client/internal/net/proto"
	"lockstep/client/logging/network"
)

// checkLiveness watches the time since the last packet once the server
// has accepted the client. A long silence is reported as lag; a longer one
// ends the session.
func (s *Session) checkLiveness() error {
	if !s.state.joined() {
		return nil
	}
	silence := s.now.Sub(s.lastPacket)
	if silence >= s.opts.LagTimeout {
		return s.fail(&Reason{
			Kind:   KindTimeout,
			Code:   proto.ErrorConnectionLost,
			Detail: fmt.Sprintf("no packet for %s", silence),
		})
	}
	if silence < s.opts.LagWarning {
		return nil
	}
	s.lagging = true
	s.lagNotice.Do(func() {
		s.deps.UI.ReportStatus(Status{Phase: PhaseLagging, Silence: silence})
		network.LagWarning(s.ctx, s.deps.Publisher, s.frames.frame, s.actor,
			network.LagPayload{SilenceMillis: silence.Milliseconds()}, nil)
	})
	return nil
}
