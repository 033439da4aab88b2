package network

import (
	"context"

	"lockstep/client/logging"
)

const (
	// EventAckSent is emitted when the client acknowledges its frame progress.
	EventAckSent logging.EventType = "network.ack_sent"
	// EventLagWarning is emitted when the server has been silent for longer than the warning threshold.
	EventLagWarning logging.EventType = "network.lag_warning"
	// EventPacketRejected is emitted when a packet is not valid for the current state.
	EventPacketRejected logging.EventType = "network.packet_rejected"
	// EventEncryptionEnabled is emitted once both directions switch to the derived keys.
	EventEncryptionEnabled logging.EventType = "network.encryption_enabled"
)

// AckPayload captures an acknowledgement sent to the server.
type AckPayload struct {
	Frame uint32 `json:"frame"`
	Token uint8  `json:"token"`
}

// LagPayload captures how long the server has been silent.
type LagPayload struct {
	SilenceMillis int64 `json:"silenceMillis"`
}

// PacketRejectedPayload captures a packet refused by the state machine.
type PacketRejectedPayload struct {
	Packet string `json:"packet"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// EncryptionPayload names the negotiated authentication method.
type EncryptionPayload struct {
	Method string `json:"method"`
}

// AckSent publishes a debug event for an acknowledgement.
func AckSent(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAckSent,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// LagWarning publishes a warning when the connection stalls.
func LagWarning(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload LagPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLagWarning,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// PacketRejected publishes a warning for a packet that violated the protocol.
func PacketRejected(ctx context.Context, pub logging.Publisher, frame uint32, actor logging.EntityRef, payload PacketRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPacketRejected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// EncryptionEnabled publishes an info event once the channel is encrypted.
func EncryptionEnabled(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload EncryptionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEncryptionEnabled,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
