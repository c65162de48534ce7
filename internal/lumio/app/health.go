package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/Lumio/common/version"
)

// HealthServer exposes /health, /status, /metrics and any additionally
// registered endpoints (the LINE webhook).
type HealthServer struct {
	addr       string
	status     statusProvider
	transports []string
	startedAt  time.Time
	server     *http.Server
	router     *mux.Router
}

// statusProvider is the minimal interface the health server needs from the
// reminder store.
type statusProvider interface {
	PendingCount(ctx context.Context) (int, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	Commit           string    `json:"commit"`
	BuildTime        string    `json:"build_time"`
	StartedAt        time.Time `json:"started_at"`
	UptimeSecs       float64   `json:"uptime_seconds"`
	Transports       []string  `json:"transports"`
	PendingReminders int       `json:"pending_reminders"`
}

// NewHealthServer creates the HTTP server (does not start it).
func NewHealthServer(addr string, sp statusProvider, transports []string) *HealthServer {
	r := mux.NewRouter()
	hs := &HealthServer{
		addr:       addr,
		status:     sp,
		transports: transports,
		startedAt:  time.Now(),
		router:     r,
	}
	r.HandleFunc("/health", hs.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", hs.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return hs
}

// ServeHTTP implements http.Handler.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Handle registers handler for path. Call before Run.
func (h *HealthServer) Handle(path string, handler http.Handler) {
	h.router.Handle(path, handler)
}

// Run listens on addr and serves until ctx is cancelled.
func (h *HealthServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", h.addr, err)
	}
	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}()

	slog.Info("http server listening", "addr", ln.Addr().String())
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending := 0
	if h.status != nil {
		if n, err := h.status.PendingCount(r.Context()); err == nil {
			pending = n
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           "ok",
		Version:          version.Version,
		Commit:           version.GitCommit,
		BuildTime:        version.BuildTime,
		StartedAt:        h.startedAt,
		UptimeSecs:       time.Since(h.startedAt).Seconds(),
		Transports:       h.transports,
		PendingReminders: pending,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http: failed to encode JSON response", "err", err)
	}
}
