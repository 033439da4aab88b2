// Package app wires configuration, logging, storage and transport around a
// session and keeps it running until the user quits or the server is gone
// for good.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lockstep/client/internal/config"
	"lockstep/client/internal/headless"
	"lockstep/client/internal/net/crypto"
	"lockstep/client/internal/net/diagnostics"
	"lockstep/client/internal/net/transport"
	"lockstep/client/internal/observability"
	"lockstep/client/internal/savestore"
	"lockstep/client/internal/session"
	"lockstep/client/internal/sim"
	"lockstep/client/internal/telemetry"
	"lockstep/client/logging"
	loggingSinks "lockstep/client/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Run connects to the configured server and follows the game until ctx is
// cancelled or the session ends with a reason that does not allow a retry.
func Run(ctx context.Context, cfg config.Config) error {
	base := newLogger(cfg)
	sessionID := uuid.NewString()
	entry := base.WithField("session", sessionID)
	telemetryLogger := telemetry.WrapLogger(entry)

	router, closeSinks, err := newRouter(cfg, entry)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		closeSinks()
	}()

	obsCfg := observability.Config{
		EnablePprofTrace: cfg.EnablePprofTrace,
		DiagnosticsAddr:  cfg.DiagnosticsAddr,
		OTLPEndpoint:     cfg.OTLPEndpoint,
		ServiceName:      cfg.ServiceName,
	}
	shutdownTracing, err := observability.SetupTracing(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := shutdownTracing(closeCtx); serr != nil {
			telemetryLogger.Printf("failed to flush traces: %v", serr)
		}
	}()

	store, err := savestore.Open(ctx, cfg.SaveDBPath)
	if err != nil {
		return fmt.Errorf("failed to open save store: %w", err)
	}
	defer store.Close()

	catalog, err := parseCatalog(cfg.Content)
	if err != nil {
		return fmt.Errorf("invalid LOCKSTEP_CONTENT: %w", err)
	}
	auth, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	metrics := &logging.Metrics{}
	c := &client{
		cfg:       cfg,
		sessionID: sessionID,
		log:       entry,
		logger:    telemetryLogger,
		metrics:   telemetry.WrapMetrics(metrics),
		publisher: router,
		catalog:   catalog,
		auth:      auth,
		saver: &storeSaver{
			store:     store,
			sessionID: sessionID,
			format:    cfg.SaveFormat,
			clock:     logging.SystemClock{},
			logger:    telemetryLogger,
		},
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		r := reconnector{
			initial:   cfg.ReconnectDelay,
			maxTries:  cfg.MaxReconnects,
			publisher: router,
			actor:     logging.EntityRef{ID: sessionID, Kind: logging.EntityKindSession},
		}
		err := r.run(gctx, c.runSession)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.DiagnosticsAddr != "" {
		errorLog := entry.WriterLevel(logrus.WarnLevel)
		defer errorLog.Close()
		handler := diagnostics.NewHandler(diagnostics.HandlerConfig{
			Source:        c.diagnostics,
			Metrics:       metrics,
			Logger:        log.New(errorLog, "", 0),
			Observability: obsCfg,
		})
		srv := diagnostics.NewServer(cfg.DiagnosticsAddr, handler)
		g.Go(func() error {
			telemetryLogger.Printf("diagnostics listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("diagnostics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(closeCtx)
		})
	}

	return g.Wait()
}

// client holds what survives across reconnects.
type client struct {
	cfg       config.Config
	sessionID string
	log       logrus.FieldLogger
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher
	catalog   session.ContentCatalog
	auth      crypto.Authenticator
	saver     session.EmergencySaver

	current atomic.Pointer[session.Session]
}

func (c *client) diagnostics() (session.Diagnostics, bool) {
	s := c.current.Load()
	if s == nil {
		return session.Diagnostics{}, false
	}
	return s.Diagnostics(), true
}

// runSession dials once and drives one session to its end. Cancelling ctx
// quits the session cleanly.
func (c *client) runSession(ctx context.Context) error {
	conn, err := transport.Dial(ctx, c.cfg.ServerAddress, transport.Options{DialTimeout: c.cfg.DialTimeout})
	if err != nil {
		c.logger.Printf("[app] dial %s failed: %v", c.cfg.ServerAddress, err)
		return err
	}

	s, err := session.New(ctx, c.options(), session.Deps{
		Conn:       conn,
		Simulation: headless.New(0),
		UI:         newLogUI(c.log),
		Catalog:    c.catalog,
		Saver:      c.saver,
		Publisher:  c.publisher,
		Logger:     c.logger,
		Metrics:    c.metrics,
	})
	if err != nil {
		conn.Close()
		return err
	}
	c.current.Store(s)
	if err := s.Start(); err != nil {
		return err
	}

	loop := sim.NewLoop(s, sim.LoopConfig{FrameInterval: c.cfg.FrameInterval}, sim.Deps{
		Logger:  c.logger,
		Metrics: c.metrics,
	}, sim.LoopHooks{})
	err = loop.Run(ctx)
	if ctx.Err() != nil {
		return s.Quit()
	}
	return err
}

func (c *client) options() session.Options {
	cfg := c.cfg
	opts := session.Options{
		SessionID:        c.sessionID,
		ClientName:       cfg.ClientName,
		ClientVersion:    cfg.ClientVersion,
		Company:          companyFromConfig(cfg.Company),
		Authenticator:    c.auth,
		CommandsPerFrame: cfg.CommandsPerFrame,
		CallbackLifetime: cfg.CallbackLifetime,
		AckInterval:      cfg.AckInterval,
		CatchUpMaxFrames: cfg.CatchUpMaxFrames,
		LagWarning:       cfg.LagWarning,
		LagTimeout:       cfg.LagTimeout,
		ErrorGrace:       cfg.ErrorGrace,
		ReconnectDelay:   cfg.ReconnectDelay,
		MaxMapBytes:      cfg.MaxMapBytes,
		JournalFrames:    cfg.JournalFrames,
	}
	if cfg.WideFingerprints {
		opts.Fingerprinter = sim.WideFingerprinter
	}
	return opts
}

// companyFromConfig maps the 1-based setting onto a company slot: 0 asks for
// a new company and anything negative spectates.
func companyFromConfig(company int) sim.CompanyID {
	switch {
	case company < 0:
		return sim.CompanySpectator
	case company == 0:
		return sim.CompanyNew
	default:
		return sim.CompanyID(company - 1)
	}
}

func newAuthenticator(cfg config.Config) (crypto.Authenticator, error) {
	auths := []crypto.Authenticator{&crypto.PasswordAuthenticator{Password: cfg.Password}}
	secret, err := cfg.SecretKeyBytes()
	if err != nil {
		return nil, err
	}
	if secret != ([32]byte{}) {
		pair, err := crypto.NewKeyPair(secret)
		if err != nil {
			return nil, fmt.Errorf("derive client key: %w", err)
		}
		auths = append(auths, &crypto.KeyAuthenticator{Pair: pair})
	}
	return crypto.Chain(auths...), nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// newRouter builds the event router with a console sink and, when a path is
// configured, a JSON file sink. The returned func closes the file.
func newRouter(cfg config.Config, fallback logrus.FieldLogger) (*logging.Router, func(), error) {
	logCfg := logging.ConfigFor(logging.Settings{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		JSONFile: cfg.LogJSONFile,
	})
	logCfg.Fallback = fallback

	sinks := []logging.NamedSink{
		{Name: logging.SinkConsole, Sink: loggingSinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	var file io.Closer
	if logCfg.HasSink(logging.SinkJSON) {
		f, err := os.OpenFile(logCfg.JSONFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log: %w", err)
		}
		file = f
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewJSON(f, logCfg.JSONFlushInterval)})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, sinks)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	closeSinks := func() {
		if file != nil {
			file.Close()
		}
	}
	return router, closeSinks, nil
}
