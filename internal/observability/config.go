package observability

// Config captures opt-in observability toggles that wire into the client.
type Config struct {
	EnablePprofTrace bool
	// DiagnosticsAddr is where the diagnostics HTTP endpoint listens. Empty
	// disables it.
	DiagnosticsAddr string
	// OTLPEndpoint is the collector URL for traces. Empty disables tracing.
	OTLPEndpoint string
	ServiceName  string
}
