package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/api"
	audithook "github.com/rentbook/ledger/audit_hook"
	"github.com/rentbook/ledger/events/kafka"
	"github.com/rentbook/ledger/observability"
	"github.com/rentbook/ledger/plugin"
)

func newServeCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				e.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")

	return cmd
}

// plugins builds the lifecycle plugins for a long-running process.
func (e *env) plugins(reg *prometheus.Registry) []plugin.Plugin {
	auditLog := e.logger.With("component", "audit")
	plugins := []plugin.Plugin{
		observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)),
		audithook.New(audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
			auditLog.LogAttrs(ctx, slog.LevelInfo, ev.Action,
				slog.String("resource", ev.Resource),
				slog.String("resource_id", ev.ResourceID),
				slog.String("outcome", ev.Outcome),
				slog.String("severity", ev.Severity),
				slog.String("actor", ledger.ActorFrom(ctx)),
			)
			return nil
		}), audithook.WithLogger(e.logger)),
	}
	if len(e.cfg.Kafka.Brokers) > 0 {
		opts := []kafka.Option{kafka.WithLogger(e.logger)}
		if e.cfg.Kafka.Topic != "" {
			opts = append(opts, kafka.WithTopic(e.cfg.Kafka.Topic))
		}
		plugins = append(plugins, kafka.NewPublisher(e.cfg.Kafka.Brokers, opts...))
	}
	return plugins
}

func (e *env) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	l, err := e.open(ctx, e.plugins(reg)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Stop(); err != nil {
			e.logger.Warn("closing store", "error", err)
		}
	}()

	if chart, err := e.cfg.ChartOfAccounts(); err != nil {
		return err
	} else if len(chart) > 0 {
		if _, err := l.SeedAccounts(ctx, chart); err != nil {
			e.logger.Warn("seeding accounts", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", api.New(l, api.WithLogger(e.logger), api.WithBasePath(e.cfg.HTTP.BasePath)))

	srv := &http.Server{
		Addr:         e.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  e.cfg.HTTP.ReadTimeout,
		WriteTimeout: e.cfg.HTTP.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		e.logger.Info("http server listening", "addr", srv.Addr, "base_path", e.cfg.HTTP.BasePath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.shutdownTimeout())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (e *env) shutdownTimeout() time.Duration {
	if t := e.cfg.HTTP.ShutdownTimeout; t > 0 {
		return t
	}
	return 15 * time.Second
}
