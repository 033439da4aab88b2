package session

import "time"

// Diagnostics is a point-in-time view of a session for the diagnostics
// endpoint.
type Diagnostics struct {
	State            string    `json:"state"`
	ClientID         uint32    `json:"clientId,omitempty"`
	Frame            uint32    `json:"frame"`
	ServerFrame      uint32    `json:"serverFrame"`
	MaxFrame         uint32    `json:"maxFrame"`
	QueuedCommands   int       `json:"queuedCommands"`
	PendingCallbacks int       `json:"pendingCallbacks"`
	IncomingCommands int       `json:"incomingCommands"`
	Clients          int       `json:"clients"`
	Reason           string    `json:"reason,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (s *Session) publishDiagnostics() {
	d := &Diagnostics{
		State:            s.state.String(),
		ClientID:         s.clientID,
		Frame:            s.frames.frame,
		ServerFrame:      s.frames.serverFrame,
		MaxFrame:         s.frames.maxFrame,
		QueuedCommands:   s.outgoing.Len(),
		PendingCallbacks: s.callbacks.Len(),
		IncomingCommands: s.incoming.Len(),
		Clients:          len(s.roster),
		UpdatedAt:        s.now,
	}
	if s.reason != nil {
		d.Reason = s.reason.Error()
	}
	s.diag.Store(d)
}

// Diagnostics returns the view captured after the last Step. It is safe to
// call from any goroutine.
func (s *Session) Diagnostics() Diagnostics {
	if d := s.diag.Load(); d != nil {
		return *d
	}
	return Diagnostics{}
}
