// Package admin serves health, metrics and flow-table snapshots over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/logging"
)

// FlowView is one tracked connection in /api/v1/flows.
type FlowView struct {
	LocalAddr   string `json:"local_addr"`
	LocalPort   uint16 `json:"local_port"`
	RemoteAddr  string `json:"remote_addr"`
	RemotePort  uint16 `json:"remote_port"`
	MSS         uint16 `json:"mss"`
	WindowScale uint8  `json:"window_scale"`
}

// Stats is the body of /api/v1/stats.
type Stats struct {
	Flows      int                   `json:"flows"`
	TableBits  uint8                 `json:"table_bits"`
	Processor  core.ProcessorMetrics `json:"processor"`
	UptimeSecs int64                 `json:"uptime_secs"`
}

// Server is the admin HTTP server.
type Server struct {
	table    *flow.Table
	gatherer prometheus.Gatherer
	metrics  func() core.ProcessorMetrics
	started  time.Time

	router *mux.Router
	srv    *http.Server
}

// NewServer builds the routes. metrics may be nil when no processor runs.
func NewServer(table *flow.Table, gatherer prometheus.Gatherer, metrics func() core.ProcessorMetrics) *Server {
	s := &Server{
		table:    table,
		gatherer: gatherer,
		metrics:  metrics,
		started:  time.Now(),
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/flows", s.handleFlows).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Admin server listening on %s", ln.Addr())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Infof("Admin server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	flows := make([]FlowView, 0, s.table.Len())
	s.table.Range(func(k flow.Key, st flow.State) bool {
		flows = append(flows, FlowView{
			LocalAddr:   k.Local().String(),
			LocalPort:   k.LocalPort,
			RemoteAddr:  k.Remote().String(),
			RemotePort:  k.RemotePort,
			MSS:         st.MSS,
			WindowScale: st.WindowScale,
		})
		return true
	})
	writeJSON(w, flows)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := Stats{
		Flows:      s.table.Len(),
		TableBits:  s.table.Bits(),
		UptimeSecs: int64(time.Since(s.started).Seconds()),
	}
	if s.metrics != nil {
		st.Processor = s.metrics()
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warnf("Admin response encode failed: %v", err)
	}
}
