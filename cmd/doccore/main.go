// Package main is the entry point for the doccore CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"doccore/cmd/doccore/commands"
	"doccore/internal/config"
	"doccore/internal/core"
	"doccore/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, openService))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, open commands.ServiceOpener) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(open)
	cli.SetArgs(args)
	cli.SetOutput(stdout, stderr)
	if err := cli.Execute(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	return 0
}

// openService wires configuration, logging, metrics and tracing around the
// configured document store.
func openService(ctx context.Context, opts commands.OpenOptions) (*core.Service, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	serviceOpts, err := metricsOptions(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	serviceOpts = append(serviceOpts, core.WithLogger(logger))
	if opts.Trace != nil {
		serviceOpts = append(serviceOpts, core.WithTracer(core.NewJSONTracer(opts.Trace)))
	}
	svc, err := core.OpenService(ctx, cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("document store opened", "driver", cfg.Storage.Driver)
	return svc, nil
}

// metricsOptions builds the recorder selected by cfg. The prometheus
// exporter uses a private registry, written to cfg.Textfile on close.
func metricsOptions(cfg config.Metrics) ([]core.ServiceOption, error) {
	switch cfg.Exporter {
	case config.ExporterNone:
		return nil, nil
	case config.ExporterPrometheus:
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		opts := []core.ServiceOption{core.WithMetricsRecorder(rec)}
		if cfg.Textfile != "" {
			opts = append(opts, core.WithCloseHook(func() error {
				return prometheus.WriteToTextfile(cfg.Textfile, reg)
			}))
		}
		return opts, nil
	default:
		return []core.ServiceOption{core.WithMetricsRecorder(core.NewExpvarMetricsRecorder(""))}, nil
	}
}
