package lifecycle

import (
	"context"

	"lockstep/client/logging"
)

const (
	// EventStateChanged is emitted on every connection state transition.
	EventStateChanged logging.EventType = "lifecycle.state_changed"
	// EventConnected is emitted when the server assigns the client id.
	EventConnected logging.EventType = "lifecycle.connected"
	// EventDisconnected is emitted when the connection is torn down.
	EventDisconnected logging.EventType = "lifecycle.disconnected"
	// EventReconnectScheduled is emitted when a restart triggers a delayed reconnect.
	EventReconnectScheduled logging.EventType = "lifecycle.reconnect_scheduled"
	// EventEmergencySave is emitted after an emergency snapshot attempt.
	EventEmergencySave logging.EventType = "lifecycle.emergency_save"
)

// StateChangedPayload captures a transition.
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConnectedPayload captures the identity assigned by the server.
type ConnectedPayload struct {
	ClientID uint32 `json:"clientId"`
	Server   string `json:"server"`
}

// DisconnectedPayload captures why the connection ended.
type DisconnectedPayload struct {
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Reconnect bool   `json:"reconnect,omitempty"`
}

// ReconnectPayload captures the reconnect schedule.
type ReconnectPayload struct {
	DelayMillis int64 `json:"delayMillis"`
	Attempt     int   `json:"attempt"`
}

// EmergencySavePayload captures the outcome of an emergency save.
type EmergencySavePayload struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// StateChanged publishes a debug event for a transition.
func StateChanged(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload StateChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStateChanged,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// Connected publishes a connection event.
func Connected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventConnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// Disconnected publishes a teardown event. User quits are informational,
// everything else is an error.
func Disconnected(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload DisconnectedPayload, fatal bool, extra map[string]any) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if fatal {
		severity = logging.SeverityError
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDisconnected,
		Frame:    frame,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ReconnectScheduled publishes a reconnect notice.
func ReconnectScheduled(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ReconnectPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReconnectScheduled,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// EmergencySave publishes the result of an emergency save.
func EmergencySave(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload EmergencySavePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	severity := logging.SeverityWarn
	if payload.Error != "" {
		severity = logging.SeverityError
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEmergencySave,
		Frame:    frame,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
