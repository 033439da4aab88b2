package commands

import (
	"context"

	"lockstep/client/logging"
)

const (
	// EventCommandQueued is emitted when a command waits for a later frame.
	EventCommandQueued logging.EventType = "commands.queued"
	// EventCommandResolved is emitted when the echo of a local command executes.
	EventCommandResolved logging.EventType = "commands.resolved"
	// EventCommandsExpired is emitted when pending callbacks age out without an echo.
	EventCommandsExpired logging.EventType = "commands.expired"
)

// CommandPayload identifies a command.
type CommandPayload struct {
	Action      uint32 `json:"action"`
	Tile        uint32 `json:"tile"`
	Fingerprint string `json:"fingerprint"`
	Backlog     int    `json:"backlog,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ExpiredPayload captures a sweep that failed callbacks.
type ExpiredPayload struct {
	Count    int    `json:"count"`
	Lifetime uint32 `json:"lifetime"`
}

// Queued publishes a debug event for a command held back by the frame quota.
func Queued(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventCommandQueued,
		Frame:     frame,
		Actor:     actor,
		Severity:  logging.SeverityDebug,
		Category:  logging.CategoryCommands,
		Payload:   payload,
		Extra:     extra,
		CommandID: payload.Fingerprint,
	})
}

// Resolved publishes a debug event for a resolved callback.
func Resolved(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventCommandResolved,
		Frame:     frame,
		Actor:     actor,
		Severity:  logging.SeverityDebug,
		Category:  logging.CategoryCommands,
		Payload:   payload,
		Extra:     extra,
		CommandID: payload.Fingerprint,
	})
}

// Expired publishes a warning when callbacks expire.
func Expired(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload ExpiredPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandsExpired,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryCommands,
		Payload:  payload,
		Extra:    extra,
	})
}
