package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorbridge/internal/config"
	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/logging"
	"github.com/normanking/tutorbridge/internal/metrics"
	"github.com/normanking/tutorbridge/internal/recorder"
	"github.com/normanking/tutorbridge/internal/session"
)

type nodeKind string

const (
	nodeController nodeKind = "controller"
	nodeContext    nodeKind = "context"
	nodeRecorder   nodeKind = "recorder"
)

// runtime is what every subcommand shares: config, logging and the dialer.
type runtime struct {
	cfg    *config.Config
	log    *logging.Logger
	logger zerolog.Logger
	hub    *dataflow.Hub // set for the memory transport
	dialer dataflow.Dialer
}

func setup(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg, log), nil
}

func newRuntime(cfg *config.Config, log *logging.Logger) *runtime {
	rt := &runtime{
		cfg:    cfg,
		log:    log,
		logger: log.Component("tutornode"),
	}
	switch cfg.Dataflow.Transport {
	case "memory":
		rt.hub = dataflow.NewHub(cfg.Dataflow.Buffer)
		rt.dialer = rt.hub
	default:
		d := dataflow.NewWSDialer(cfg.Dataflow.URL, log.Component("dataflow"))
		d.HandshakeTimeout = cfg.Dataflow.DialTimeout
		d.Buffer = cfg.Dataflow.Buffer
		rt.dialer = d
	}
	return rt
}

func (rt *runtime) close() {
	if err := rt.log.Close(); err != nil {
		rt.logger.Debug().Err(err).Msg("Close logger")
	}
}

// wireMemory routes the edges between session nodes sharing the in-process
// hub. The ws transport gets its routes from the pipeline descriptor.
func (rt *runtime) wireMemory(kinds []nodeKind) {
	if rt.hub == nil {
		return
	}
	has := make(map[nodeKind]bool, len(kinds))
	for _, k := range kinds {
		has[k] = true
	}
	ctrl, cm, rec := rt.cfg.Session.ControllerNodeID, rt.cfg.Session.ContextNodeID, rt.cfg.Store.NodeID
	if has[nodeController] && has[nodeContext] {
		rt.hub.MustConnect(ctrl+"/"+session.OutputControl, cm+"/"+session.InputControl)
	}
	if has[nodeController] && has[nodeRecorder] {
		rt.hub.MustConnect(ctrl+"/"+session.OutputStatus, rec+"/"+recorder.InputStatus)
	}
	if has[nodeContext] && has[nodeRecorder] {
		rt.hub.MustConnect(cm+"/"+session.OutputUserText, rec+"/"+recorder.InputUserText)
	}
}

// run registers the requested nodes and serves them until ctx is done or
// one of them fails.
func (rt *runtime) run(ctx context.Context, kinds ...nodeKind) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt.wireMemory(kinds)

	if rt.cfg.Metrics.Enabled {
		stopMetrics := rt.serveMetrics()
		defer stopMetrics()
	}
	if src := rt.cfg.Source(); src != "" {
		w, err := config.Watch(src, func(c *config.Config) {
			rt.log.SetLevel(c.Logging.Level)
			rt.logger.Info().Str("level", c.Logging.Level).Msg("Log level reloaded")
		}, rt.logger)
		if err != nil {
			rt.logger.Warn().Err(err).Msg("Config hot reload disabled")
		} else {
			defer w.Close()
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, k := range kinds {
		serve, err := rt.start(ctx, k)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(k nodeKind) {
			defer wg.Done()
			if err := serve(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				mu.Unlock()
			}
			// One node ending ends the process.
			cancel()
		}(k)
	}

	rt.logger.Info().Interface("nodes", kinds).Str("transport", rt.cfg.Dataflow.Transport).Msg("Nodes running")
	wg.Wait()
	rt.logger.Info().Msg("Nodes stopped")
	return errors.Join(errs...)
}

// start registers one node and returns its serve loop.
func (rt *runtime) start(ctx context.Context, kind nodeKind) (func() error, error) {
	dial := func(reg dataflow.Registration) (dataflow.Node, error) {
		dctx := ctx
		if t := rt.cfg.Dataflow.DialTimeout; t > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		node, err := rt.dialer.Dial(dctx, reg)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", reg.NodeID, err)
		}
		return node, nil
	}

	switch kind {
	case nodeController:
		logger := rt.log.Component("session-controller")
		node, err := dial(session.ControllerRegistration(rt.cfg.Session.ControllerNodeID))
		if err != nil {
			return nil, err
		}
		c := session.NewController(node.ID(), logger)
		return func() error {
			defer node.Close()
			return session.RunController(ctx, node, c, logger)
		}, nil

	case nodeContext:
		logger := rt.log.Component("session-context")
		node, err := dial(session.ContextRegistration(rt.cfg.Session.ContextNodeID))
		if err != nil {
			return nil, err
		}
		m := session.NewContextManager(logger)
		return func() error {
			defer node.Close()
			return session.RunContext(ctx, node, m, logger)
		}, nil

	case nodeRecorder:
		store, err := recorder.NewSQLiteStore(rt.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rec := recorder.New(store, rt.cfg.ParticipantRegistry(), rt.log.Zerolog())
		node, err := dial(rec.Registration(rt.cfg.Store.NodeID))
		if err != nil {
			store.Close()
			return nil, err
		}
		return func() error {
			defer store.Close()
			defer node.Close()
			return rec.Run(ctx, node)
		}, nil
	}
	return nil, fmt.Errorf("unknown node %q", kind)
}

// serveMetrics starts the prometheus endpoint and returns its shutdown.
func (rt *runtime) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              rt.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printTranscript(ctx context.Context, w io.Writer, store recorder.Store, sessionID string) error {
	messages, err := store.Messages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	statuses, err := store.Statuses(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read statuses: %w", err)
	}
	if len(messages) == 0 && len(statuses) == 0 {
		fmt.Fprintf(w, "No transcript for session %s\n", sessionID)
		return nil
	}

	fmt.Fprintf(w, "Session %s\n\n", sessionID)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %s  [%s]\n", s.CreatedAt.Format("15:04:05"), s.State)
	}
	if len(statuses) > 0 {
		fmt.Fprintln(w)
	}
	for _, m := range messages {
		fmt.Fprintf(w, "  %s  %s (%s): %s\n", m.CreatedAt.Format("15:04:05"), m.Sender, m.Role, m.Content)
	}
	return nil
}
