// Package app is the HTTP surface of the controller: health probes, the
// latest report, the dashboard data, metrics and the runtime controls.
package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/internal/services/persistence"
)

// Controller is the part of the orchestrator the gateway talks to.
type Controller interface {
	Submit(req messages.ControlRequest)
	LastReport() (messages.CycleReport, bool)
}

// PumpResolver maps a pump name or 1-based number onto the pump name.
type PumpResolver interface {
	Resolve(ref string) (string, bool)
}

type Config struct {
	Controller Controller
	Pumps      PumpResolver
	Probes     event.Probes
	// MinOkErrorAge is how long ago the last Influx write error must be for
	// /readyz to succeed.
	MinOkErrorAge time.Duration

	// Persistence serves /report/latest and /data/latest when set.
	Persistence *persistence.Service
	// Events and EventsBucket serve /events/latest when set.
	Events       api.QueryAPI
	EventsBucket string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Gateway struct {
	cfg    Config
	router *mux.Router
}

func NewGateway(cfg Config) *Gateway {
	g := &Gateway{cfg: cfg, router: mux.NewRouter()}
	g.routes()
	return g
}

func (g *Gateway) routes() {
	r := g.router
	r.Handle("/healthz", event.NewHealthHandler(g.cfg.Probes)).Methods(http.MethodGet)
	r.Handle("/readyz", event.NewReadyHandler(g.cfg.Probes, g.cfg.MinOkErrorAge)).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/data", g.HandleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/pumps/{pump}/irrigate", g.HandleIrrigate).Methods(http.MethodPost)
	r.HandleFunc("/auto-irrigation", g.HandleAutoIrrigation).Methods(http.MethodPut)
	r.HandleFunc("/manual-duration", g.HandleManualDuration).Methods(http.MethodPut)

	if g.cfg.Persistence != nil {
		persistence.Routes(r, g.cfg.Persistence)
	} else {
		r.HandleFunc("/report/latest", g.HandleReport).Methods(http.MethodGet)
	}
	if g.cfg.Events != nil {
		r.Handle("/events/latest", event.NewLatestHandler(g.cfg.Events, g.cfg.EventsBucket)).Methods(http.MethodGet)
	}
	if g.cfg.Metrics != nil {
		r.Handle("/metrics", g.cfg.Metrics).Methods(http.MethodGet)
	}
	r.Use(logging)
}

// Handler returns the router.
func (g *Gateway) Handler() http.Handler { return g.router }

// Server builds the HTTP server listening on addr.
func (g *Gateway) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debugf("gateway: %s %s -> %d [%dms]", r.Method, r.URL.Path, sw.status, time.Since(start).Milliseconds())
	})
}
