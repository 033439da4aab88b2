package app

import (
	"github.com/sirupsen/logrus"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/session"
)

// logUI stands in for a player-facing interface by writing everything a
// player would see to the console logger.
type logUI struct {
	log   logrus.FieldLogger
	seen  bool
	phase session.Phase
	last  string
}

func newLogUI(log logrus.FieldLogger) *logUI {
	return &logUI{log: log}
}

func (u *logUI) ReportError(kind session.Kind, detail string) {
	u.log.WithField("kind", kind.String()).Error(detail)
}

// ReportStatus logs phase changes and drops repeats of the same text.
func (u *logUI) ReportStatus(status session.Status) {
	text := status.String()
	if u.seen && status.Phase == u.phase && text == u.last {
		return
	}
	changed := !u.seen || status.Phase != u.phase
	u.seen, u.phase, u.last = true, status.Phase, text
	if changed {
		u.log.Info(text)
		return
	}
	u.log.Debug(text)
}

func (u *logUI) Notify(msg proto.Message) {
	switch m := msg.(type) {
	case *proto.ServerChat:
		u.log.WithFields(logrus.Fields{"client": m.ClientID, "action": m.Action}).Info(m.Text)
	case *proto.ServerRCon:
		u.log.WithField("source", "rcon").Info(m.Text)
	default:
		u.log.WithField("packet", msg.Type().String()).Debug("server notice")
	}
}

func (u *logUI) Connected(clientID uint32) {
	u.log.WithField("client", clientID).Info("joined server")
}

func (u *logUI) MapLoaded() {
	u.log.Info("map loaded")
}

func (u *logUI) Disconnected(reason *session.Reason) {
	if reason == nil {
		u.log.Info("disconnected")
		return
	}
	entry := u.log.WithField("kind", reason.Kind.String())
	if reason.Reconnect {
		entry = entry.WithField("reconnect", reason.ReconnectAfter)
	}
	entry.Info(reason.Error())
}
