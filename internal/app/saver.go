package app

import (
	"bytes"
	"context"
	"fmt"

	"lockstep/client/internal/mapxfer"
	"lockstep/client/internal/savestore"
	"lockstep/client/internal/session"
	"lockstep/client/internal/telemetry"
	"lockstep/client/logging"
)

// storeSaver writes emergency snapshots into the save store, encoded the same
// way the server ships maps so they can be loaded back.
type storeSaver struct {
	store     *savestore.Store
	sessionID string
	format    string
	clock     logging.Clock
	logger    telemetry.Logger
}

func (s *storeSaver) EmergencySave(ctx context.Context, save session.EmergencySave) error {
	if save.Snapshot == nil {
		return fmt.Errorf("emergency save at frame %d: no snapshot source", save.Frame)
	}
	var buf bytes.Buffer
	if err := mapxfer.Encode(&buf, s.format, save.Snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	reason := "unknown"
	if save.Reason != nil {
		reason = save.Reason.Kind.String()
	}
	id, err := s.store.Save(ctx, savestore.Record{
		SessionID: s.sessionID,
		Reason:    reason,
		Frame:     save.Frame,
		Format:    s.format,
		CreatedAt: s.clock.Now(),
		Data:      buf.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	s.logger.Printf("[app] emergency save %s written at frame %d (%s, %d bytes)", id, save.Frame, reason, buf.Len())
	return nil
}
