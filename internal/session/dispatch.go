package session

import "lockstep/client/internal/net/proto"

// handle is the single entry point for inbound packets. Each arm checks
// that the packet is valid in the current state; anything else is a
// protocol violation.
func (s *Session) handle(msg proto.Message) error {
	switch m := msg.(type) {
	case *proto.Full:
		return s.serverDisconnect(&Reason{Kind: KindServerDisconnect, Code: proto.ErrorFull, Detail: "server full", Remote: true})
	case *proto.Banned:
		return s.serverDisconnect(&Reason{Kind: KindServerDisconnect, Code: proto.ErrorNotAuthorized, Detail: "banned", Remote: true})
	case *proto.ServerError:
		return s.serverDisconnect(remoteReason(m.Code, m.Message))
	case *proto.Shutdown:
		return s.serverDisconnect(&Reason{Kind: KindServerDisconnect, Detail: "server shutting down", Remote: true})
	case *proto.NewGame:
		return s.serverDisconnect(&Reason{
			Kind:           KindServerDisconnect,
			Detail:         "server restarting",
			Remote:         true,
			Reconnect:      true,
			ReconnectAfter: s.opts.ReconnectDelay,
		})

	case *proto.CheckNewGRFs:
		if s.state != StateJoining {
			return s.reject(msg)
		}
		return s.onCheckNewGRFs(m)
	case *proto.AuthRequest:
		switch s.state {
		case StateJoining, StateNewGRFsCheck, StateAuthenticating:
			return s.onAuthRequest(m)
		}
		return s.reject(msg)
	case *proto.EnableEncryption:
		if s.state != StateAuthenticating {
			return s.reject(msg)
		}
		return s.onEnableEncryption(m)
	case *proto.Welcome:
		if s.state != StateEncrypted {
			return s.reject(msg)
		}
		return s.onWelcome(m)

	case *proto.Wait:
		if s.state != StateMapWait {
			return s.reject(msg)
		}
		s.deps.UI.ReportStatus(Status{Phase: PhaseWaiting, Waiting: int(m.Waiting)})
		return nil
	case *proto.MapBegin:
		if s.state != StateMapWait && s.state != StateAuthorized {
			return s.reject(msg)
		}
		return s.onMapBegin(m)
	case *proto.MapSize:
		if s.state != StateMapTransfer {
			return s.reject(msg)
		}
		s.snapshot.SetTotal(int64(m.Bytes))
		return nil
	case *proto.MapData:
		if s.state != StateMapTransfer {
			return s.reject(msg)
		}
		return s.onMapData(m)
	case *proto.MapDone:
		if s.state != StateMapTransfer {
			return s.reject(msg)
		}
		return s.onMapDone()

	case *proto.Frame:
		if s.state != StateActive {
			return s.reject(msg)
		}
		return s.onServerFrame(m)
	case *proto.Sync:
		if s.state != StateActive {
			return s.reject(msg)
		}
		return s.onSync(m)
	case *proto.ServerCommand:
		if s.state != StateActive {
			return s.reject(msg)
		}
		return s.onServerCommand(m)

	case *proto.ClientInfo, *proto.ServerJoin, *proto.ServerQuit, *proto.ErrorQuit,
		*proto.ServerMove, *proto.ServerChat, *proto.ServerRCon, *proto.ConfigUpdate:
		if !s.state.joined() {
			return s.reject(msg)
		}
		s.roster.apply(msg)
		s.deps.UI.Notify(msg)
		return nil
	}
	return s.reject(msg)
}

// serverDisconnect handles every packet with which the server ends the
// connection. They are accepted in any connected state.
func (s *Session) serverDisconnect(reason *Reason) error {
	return s.fail(reason)
}
