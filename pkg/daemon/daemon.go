package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pborman/uuid"

	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/engine"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/metrics"
)

type Daemon struct {
	server *http.Server
	l      net.Listener
	doneCh chan struct{}

	// mv reads recorded run measurements back for the dashboard endpoints;
	// nil when no InfluxDB endpoint is configured.
	mv *metrics.Viewer
}

// New creates a new Daemon and attaches the following handlers:
//
// * GET /list: enumerate all suites and test cases imported on the daemon.
// * GET /describe: describe a suite and its test cases.
// * GET /tasks: list tasks, filtered by type and state.
// * GET /logs: retrieve or follow the output log of a task.
// * POST /run: queue an evaluation of test cases from a suite.
// * POST /build: queue a compile-only pass over test cases.
// * POST /outputs: collect the output tree of a run as a gzipped tarball.
// * POST /kill: cancel a scheduled or running task.
// * POST /healthcheck: check, and optionally fix, a runner's preconditions.
//
// With an InfluxDB endpoint configured, it additionally serves:
//
// * GET /dashboard: list the measurement series recorded for a suite.
// * GET /dashboard/data: render one series as a run-by-variation CSV table.
func New(cfg *config.EnvConfig) (srv *Daemon, err error) {
	srv = new(Daemon)

	engine, err := engine.NewDefaultEngine(cfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Set a unique request ID.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Request-ID", uuid.New()[:8])
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/list", srv.listHandler(engine)).Methods("GET")
	r.HandleFunc("/describe", srv.describeHandler(engine)).Methods("GET")
	r.HandleFunc("/tasks", srv.tasksHandler(engine)).Methods("GET")
	r.HandleFunc("/logs", srv.logsHandler(engine)).Methods("GET")
	r.HandleFunc("/run", srv.runHandler(engine)).Methods("POST")
	r.HandleFunc("/build", srv.buildHandler(engine)).Methods("POST")
	r.HandleFunc("/outputs", srv.outputsHandler(engine)).Methods("POST")
	r.HandleFunc("/kill", srv.killHandler(engine)).Methods("POST")
	r.HandleFunc("/healthcheck", srv.healthcheckHandler(engine)).Methods("POST")

	if cfg.Daemon.InfluxDBEndpoint != "" {
		srv.mv, err = metrics.NewViewer(cfg)
		if err != nil {
			return nil, err
		}
		r.HandleFunc("/dashboard", srv.dashboardHandler(engine)).Methods("GET")
		r.HandleFunc("/dashboard/data", srv.dashboardDataHandler()).Methods("GET")
	}

	srv.doneCh = make(chan struct{})
	srv.server = &http.Server{
		Handler:      r,
		WriteTimeout: 600 * time.Second,
		ReadTimeout:  600 * time.Second,
	}

	srv.l, err = net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// Serve starts the server and blocks until the server is closed, either
// explicitly via Shutdown, or due to a fault condition. It propagates the
// non-nil err return value from http.Serve.
func (d *Daemon) Serve() error {
	select {
	case <-d.doneCh:
		return fmt.Errorf("tried to reuse a stopped server")
	default:
	}

	logging.S().Infow("daemon listening", "addr", d.Addr())
	return d.server.Serve(d.l)
}

func (d *Daemon) Addr() string {
	return d.l.Addr().String()
}

func (d *Daemon) Port() int {
	return d.l.Addr().(*net.TCPAddr).Port
}

func (d *Daemon) Shutdown(ctx context.Context) error {
	defer close(d.doneCh)
	if d.mv != nil {
		_ = d.mv.Close()
	}
	return d.server.Shutdown(ctx)
}
