package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/riskctl/internal/activity"
	"github.com/roach88/riskctl/internal/config"
	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/notify"
	"github.com/roach88/riskctl/internal/registry"
	"github.com/roach88/riskctl/internal/store"
)

// session is everything one command invocation needs: the store, the
// registry over it and the ambient collaborators.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *registry.Registry
	bus      *notify.Bus
	gatherer *prometheus.Registry
	metrics  *metrics.Metrics

	metricsFile string
}

// openSession resolves configuration (env file, environment, then flags)
// and opens the configured store.
func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions, policy linksync.DanglingPolicy) (*session, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
		cfg.DB = ""
	}
	if opts.DB != "" {
		cfg.DB = opts.DB
	}
	if err := cfg.Normalize(); err != nil {
		return nil, WrapExitError(ExitCommandError, "configuration", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	st, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	gatherer := prometheus.NewRegistry()
	m := metrics.New(gatherer)
	bus := notify.NewBus(notify.WithMetrics(m), notify.WithLogger(logger))

	reg := registry.New(st,
		registry.WithBus(bus),
		registry.WithActivity(activity.NewStoreRecorder(st, nil)),
		registry.WithMetrics(m),
		registry.WithLogger(logger),
		registry.WithDanglingPolicy(policy),
	)

	logger.Debug("store opened", "backend", cfg.Backend, "db", cfg.DB)
	return &session{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		registry:    reg,
		bus:         bus,
		gatherer:    gatherer,
		metrics:     m,
		metricsFile: opts.MetricsFile,
	}, nil
}

// Close writes the metrics file, if requested, and closes the store.
func (s *session) Close() error {
	s.bus.Close()
	var errs []error
	if s.metricsFile != "" {
		if err := prometheus.WriteToTextfile(s.metricsFile, s.gatherer); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session. A close
// failure is reported only when fn succeeded.
func withSession(cmd *cobra.Command, opts *RootOptions, policy linksync.DanglingPolicy, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, cmd, opts, policy)
	if err != nil {
		return err
	}
	var drain func()
	if opts.Verbose {
		drain = s.watchNotifications()
	}
	defer func() {
		if drain != nil {
			drain()
		}
		if cerr := s.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "close session", cerr)
		}
	}()
	return fn(ctx, s)
}

// watchNotifications subscribes to both collection topics. The returned
// func logs every buffered notification and unsubscribes.
func (s *session) watchNotifications() func() {
	type sub struct {
		topic  string
		ch     <-chan notify.Event
		cancel func()
	}
	var subs []sub
	for _, topic := range []string{notify.TopicRisks, notify.TopicControls} {
		ch, cancel := s.bus.Subscribe(topic)
		subs = append(subs, sub{topic: topic, ch: ch, cancel: cancel})
	}
	return func() {
		for _, sb := range subs {
		drain:
			for {
				select {
				case ev, ok := <-sb.ch:
					if !ok {
						break drain
					}
					s.logger.Debug("notification", "topic", sb.topic, "action", ev.Action, "id", ev.ID)
				default:
					break drain
				}
			}
			sb.cancel()
		}
	}
}
