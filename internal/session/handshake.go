package session

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"lockstep/client/internal/net/crypto"
	"lockstep/client/internal/net/proto"
	"lockstep/client/logging/lifecycle"
	"lockstep/client/logging/network"
)

func (s *Session) onCheckNewGRFs(m *proto.CheckNewGRFs) error {
	var missing []string
	for _, grf := range m.GRFs {
		if s.deps.Catalog == nil || !s.deps.Catalog.Has(grf.ID, grf.MD5) {
			missing = append(missing, fmt.Sprintf("%08x", grf.ID))
		}
	}
	if len(missing) > 0 {
		return s.fail(&Reason{
			Kind:   KindContentMismatch,
			Code:   proto.ErrorNewGRFMismatch,
			Detail: "missing content " + strings.Join(missing, ", "),
		})
	}
	if err := s.sendOrFail(&proto.NewGRFsChecked{}); err != nil {
		return err
	}
	s.setState(StateNewGRFsCheck)
	return nil
}

func (s *Session) onAuthRequest(m *proto.AuthRequest) error {
	auth := s.opts.Authenticator
	if auth == nil || !auth.Supports(m.Method) {
		return s.fail(&Reason{
			Kind:   KindAuthFailure,
			Code:   proto.ErrorNoAuthMethod,
			Detail: fmt.Sprintf("no authenticator for %s", m.Method),
		})
	}
	resp, keys, err := auth.Respond(m)
	if err != nil {
		code := proto.ErrorNoAuthMethod
		if errors.Is(err, crypto.ErrNoPassword) {
			code = proto.ErrorWrongPassword
		}
		return s.fail(&Reason{Kind: KindAuthFailure, Code: code, Detail: m.Method.String(), Err: err})
	}
	s.keys = keys
	s.method = m.Method
	if err := s.sendOrFail(resp); err != nil {
		return err
	}
	s.setState(StateAuthenticating)
	s.deps.UI.ReportStatus(Status{Phase: PhaseAuthorizing})
	return nil
}

// onEnableEncryption switches both directions to the session keys. The
// Identify that follows is the first sealed packet.
func (s *Session) onEnableEncryption(m *proto.EnableEncryption) error {
	channel, err := crypto.NewChannel(s.keys, m.Nonce)
	if err != nil {
		return s.fail(&Reason{Kind: KindAuthFailure, Code: proto.ErrorNotAuthorized, Detail: "install encryption", Err: err})
	}
	s.channel = channel
	s.keys = crypto.SessionKeys{}
	network.EncryptionEnabled(s.ctx, s.deps.Publisher, s.actor, network.EncryptionPayload{Method: s.method.String()}, nil)

	if err := s.sendOrFail(&proto.Identify{
		Name:    s.opts.ClientName,
		Company: s.opts.Company,
		Formats: s.opts.Formats,
	}); err != nil {
		return err
	}
	s.setState(StateEncrypted)
	return nil
}

func (s *Session) onWelcome(m *proto.Welcome) error {
	s.clientID = m.ClientID
	s.setState(StateAuthorized)
	if s.handshakeSpan != nil {
		s.handshakeSpan.SetAttributes(
			attribute.Int64("client.id", int64(m.ClientID)),
			attribute.String("auth.method", s.method.String()),
		)
		s.handshakeSpan.End()
		s.handshakeSpan = nil
	}
	lifecycle.Connected(s.ctx, s.deps.Publisher, s.actor, lifecycle.ConnectedPayload{
		ClientID: m.ClientID,
		Server:   s.conn.RemoteAddr(),
	}, nil)
	s.deps.UI.Connected(m.ClientID)

	if err := s.sendOrFail(&proto.GetMap{}); err != nil {
		return err
	}
	s.setState(StateMapWait)
	return nil
}
