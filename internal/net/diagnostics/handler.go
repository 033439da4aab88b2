// Package diagnostics serves the client's health and state over HTTP.
package diagnostics

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"lockstep/client/internal/observability"
	"lockstep/client/internal/session"
	"lockstep/client/logging"
)

// HandlerConfig wires the data sources behind the endpoints. Source may be
// nil while no session exists.
type HandlerConfig struct {
	Source        func() (session.Diagnostics, bool)
	Metrics       *logging.Metrics
	Logger        *log.Logger
	Observability observability.Config
	Clock         logging.Clock
}

type diagnosticsPayload struct {
	Status     string               `json:"status"`
	ClientTime int64                `json:"clientTime"`
	Session    *session.Diagnostics `json:"session,omitempty"`
	Telemetry  map[string]uint64    `json:"telemetry,omitempty"`
}

// NewHandler builds the diagnostics mux.
func NewHandler(cfg HandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := diagnosticsPayload{
			Status:     "idle",
			ClientTime: clock.Now().UnixMilli(),
		}
		if cfg.Source != nil {
			if snapshot, ok := cfg.Source(); ok {
				payload.Status = "ok"
				payload.Session = &snapshot
			}
		}
		if cfg.Metrics != nil {
			payload.Telemetry = cfg.Metrics.Snapshot()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("diagnostics encode failed: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

// NewServer binds the handler to addr with conservative timeouts.
func NewServer(addr string, handler nethttp.Handler) *nethttp.Server {
	return &nethttp.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
