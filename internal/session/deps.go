package session

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/trace"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/net/transport"
	"lockstep/client/internal/observability"
	"lockstep/client/internal/sim"
	"lockstep/client/internal/telemetry"
	"lockstep/client/logging"
)

// Simulation is the deterministic game state the session drives.
type Simulation interface {
	// LoadSnapshot replaces the state with a decompressed snapshot.
	LoadSnapshot(r io.Reader) error
	// Execute applies cmd during frame. An error fails the command, not the
	// session.
	Execute(cmd sim.Command, frame uint32) error
	// AdvanceFrame runs one simulation step.
	AdvanceFrame()
	// SyncChecksum summarizes the state after the last step.
	SyncChecksum() uint32
	// Save writes an uncompressed snapshot.
	Save(w io.Writer) error
}

// UI receives everything a player would see.
type UI interface {
	ReportError(kind Kind, detail string)
	ReportStatus(status Status)
	Notify(msg proto.Message)
	Connected(clientID uint32)
	MapLoaded()
	Disconnected(reason *Reason)
}

// NopUI discards notifications.
type NopUI struct{}

func (NopUI) ReportError(Kind, string) {}
func (NopUI) ReportStatus(Status)      {}
func (NopUI) Notify(proto.Message)     {}
func (NopUI) Connected(uint32)         {}
func (NopUI) MapLoaded()               {}
func (NopUI) Disconnected(*Reason)     {}

// ContentCatalog answers whether an add-on the server requires is present.
type ContentCatalog interface {
	Has(id uint32, md5 [16]byte) bool
}

// ContentCatalogFunc adapts a function to ContentCatalog.
type ContentCatalogFunc func(id uint32, md5 [16]byte) bool

func (f ContentCatalogFunc) Has(id uint32, md5 [16]byte) bool {
	return f(id, md5)
}

// EmergencySave describes a snapshot taken while tearing down.
type EmergencySave struct {
	Frame    uint32
	Reason   *Reason
	Snapshot func(w io.Writer) error
}

// EmergencySaver persists emergency snapshots.
type EmergencySaver interface {
	EmergencySave(ctx context.Context, save EmergencySave) error
}

// Deps carries collaborators and shared infrastructure. A nil Conn makes
// the session offline: commands execute immediately.
type Deps struct {
	Conn       transport.Conn
	Simulation Simulation
	UI         UI
	Catalog    ContentCatalog
	Saver      EmergencySaver
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Clock      logging.Clock
	Tracer     trace.Tracer
}

func (d Deps) withDefaults() Deps {
	if d.UI == nil {
		d.UI = NopUI{}
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	if d.Logger == nil {
		d.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NopMetrics()
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	if d.Tracer == nil {
		d.Tracer = observability.Tracer()
	}
	return d
}
