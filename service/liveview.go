package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// liveViewServer exposes the service state over HTTP for operators. It binds
// during construction so address errors surface before the run loop starts.
type liveViewServer struct {
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

type liveViewState struct {
	Name          string         `json:"name"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Metrics       CycleMetrics   `json:"metrics"`
	Sensors       []SensorStatus `json:"sensors"`
	Alerts        []AlertStatus  `json:"alerts,omitempty"`
}

func newLiveViewServer(addr string, svc *Service, logger zerolog.Logger) (*liveViewServer, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		state := liveViewState{
			Name:          svc.cfg.Name,
			StartedAt:     svc.startedAt,
			UptimeSeconds: int64(svc.Uptime() / time.Second),
			Metrics:       svc.Metrics(),
			Sensors:       svc.Snapshot(),
			Alerts:        svc.AlertStatuses(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			logger.Warn().Err(err).Msg("liveview encode failed")
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := &http.Server{Handler: mux}
	live := &liveViewServer{server: server, listener: listener, logger: logger}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("liveview server failed")
		}
	}()
	logger.Info().Str("address", listener.Addr().String()).Msg("liveview listening")
	return live, nil
}

// Addr returns the bound listen address.
func (l *liveViewServer) Addr() string {
	return l.listener.Addr().String()
}

// Close shuts the HTTP server down, waiting briefly for in-flight requests.
func (l *liveViewServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("liveview shutdown failed")
	}
}
