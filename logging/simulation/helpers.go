package simulation

import (
	"context"

	"lockstep/client/logging"
)

const (
	// EventDesync is emitted when the local checksum differs from the server's.
	EventDesync logging.EventType = "simulation.desync"
	// EventSyncMissed is emitted when a sync frame was already passed when it arrived.
	EventSyncMissed logging.EventType = "simulation.sync_missed"
	// EventMapLoaded is emitted when the snapshot loaded and frames may run.
	EventMapLoaded logging.EventType = "simulation.map_loaded"
	// EventCatchUpBounded is emitted when a catch-up pass stops at its frame bound.
	EventCatchUpBounded logging.EventType = "simulation.catch_up_bounded"
)

// DesyncPayload captures both checksums and the recent frame history.
type DesyncPayload struct {
	Frame          uint32 `json:"frame"`
	LocalChecksum  uint32 `json:"localChecksum"`
	ServerChecksum uint32 `json:"serverChecksum"`
	Recent         any    `json:"recent,omitempty"`
}

// SyncMissedPayload captures a sync request that arrived too late.
type SyncMissedPayload struct {
	SyncFrame  uint32 `json:"syncFrame"`
	LocalFrame uint32 `json:"localFrame"`
}

// MapLoadedPayload captures the snapshot that was loaded.
type MapLoadedPayload struct {
	Frame uint32 `json:"frame"`
	Bytes int64  `json:"bytes"`
}

// CatchUpPayload captures how far behind the client still is.
type CatchUpPayload struct {
	Ran    int    `json:"ran"`
	Behind uint32 `json:"behind"`
}

// Desync publishes an error event for a checksum mismatch.
func Desync(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload DesyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDesync,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// SyncMissed publishes a warning for a sync check that could not run.
func SyncMissed(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload SyncMissedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSyncMissed,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// MapLoaded publishes an info event once the snapshot loaded.
func MapLoaded(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload MapLoadedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMapLoaded,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// CatchUpBounded publishes a debug event when catch-up yields early.
func CatchUpBounded(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload CatchUpPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCatchUpBounded,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}
