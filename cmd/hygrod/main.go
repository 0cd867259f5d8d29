package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hygrod/hygrod/config"
	"github.com/hygrod/hygrod/internal/logging"
	"github.com/hygrod/hygrod/internal/reload"
	"github.com/hygrod/hygrod/service"
	"github.com/hygrod/hygrod/telemetry"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	logFormat := flag.String("log-format", "", "Override the configured log format (console or json)")
	configCheck := flag.Bool("check", false, "Validate configuration and exit")
	healthcheck := flag.Bool("healthcheck", false, "Probe the liveview health endpoint and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hygrod %s\n", version)
		return
	}

	if *healthcheck {
		if err := executeHealthCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	applyLoggingOverrides(cfg, *logLevel, *logFormat)

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector, stopMetrics, err := startTelemetry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}
	if stopMetrics != nil {
		defer stopMetrics()
	}

	if cfg.HotReload {
		if err := runWithHotReload(ctx, *cfgPath, cfg, *logLevel, *logFormat, collector); err != nil {
			if err == context.Canceled {
				return
			}
			log.Fatal().Err(err).Msg("service stopped")
		}
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	srv, err := service.New(cfg, logger, service.WithCollector(collector))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create service")
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
}

func executeHealthCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if !cfg.Liveview.Enabled {
		return errors.New("liveview is disabled, nothing to probe")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(healthURL(cfg.LiveviewListen()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}

// healthURL turns a listen address into a loopback probe URL.
func healthURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/healthz"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s/healthz", net.JoinHostPort(host, port))
}

func executeConfigCheck(cfg *config.Config) int {
	if err := service.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}
	for _, sensor := range cfg.Sensors {
		line := fmt.Sprintf("sensor %q: %s on pin %s", sensor.Name, sensor.Model, sensor.Pin)
		if sensor.Location != "" {
			line += fmt.Sprintf(" (%s)", sensor.Location)
		}
		fmt.Println(line)
	}
	for _, alert := range cfg.Alerts {
		fmt.Printf("alert %q: %s\n", alert.Name, alert.Rule)
	}
	fmt.Println("Configuration check completed successfully.")
	return 0
}

func applyLoggingOverrides(cfg *config.Config, level, format string) {
	if level != "" {
		cfg.Logging.Level = level
	}
	if format != "" {
		cfg.Logging.Format = format
	}
}

// startTelemetry registers the Prometheus collector and serves the metrics
// endpoint. The returned stop function shuts the endpoint down.
func startTelemetry(cfg *config.Config) (telemetry.Collector, func(), error) {
	if !cfg.Telemetry.Enabled {
		return telemetry.Noop(), nil, nil
	}
	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		return telemetry.Noop(), nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath(), promhttp.Handler())
	server := &http.Server{Addr: cfg.TelemetryListen(), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return collector, stop, nil
}

func runWithHotReload(ctx context.Context, cfgPath string, initialCfg *config.Config, logLevel, logFormat string, collector telemetry.Collector) error {
	if collector == nil {
		collector = telemetry.Noop()
	}
	watcher, err := reload.NewWatcher(cfgPath, initialCfg)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	cfg := initialCfg
	for {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		log.Logger = logger

		srv, err := service.New(cfg, logger, service.WithCollector(collector))
		if err != nil {
			cleanup()
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(runCtx)
		}()

		reloadRequested := false
		var changed []string

	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
					srv.Close()
					cleanup()
					return err
				}
				srv.Close()
				cleanup()
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				srv.Close()
				cleanup()
				return err
			case <-ticker.C:
				changes, err := watcher.Check()
				if err != nil {
					logger.Error().Err(err).Msg("failed to check configuration changes")
					continue
				}
				if len(changes) == 0 {
					continue
				}
				newCfg, err := config.Load(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("failed to reload configuration")
					continue
				}
				applyLoggingOverrides(newCfg, logLevel, logFormat)
				if err := service.Validate(newCfg); err != nil {
					logger.Error().Err(err).Msg("reloaded configuration invalid")
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
					logger.Error().Err(err).Msg("service stopped during reload")
				}
				srv.Close()
				cleanup()
				if err := watcher.Update(cfgPath, newCfg); err != nil {
					logger.Error().Err(err).Msg("failed to update watcher state")
				}
				changed = changes
				cfg = newCfg
				reloadRequested = true
				break loop
			}
		}

		if !reloadRequested {
			return nil
		}
		for _, file := range changed {
			collector.IncHotReload(file)
		}
		reloadRequested = false
	}
}
