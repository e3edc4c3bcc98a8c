package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"datalens/internal/logx"
	"datalens/internal/usage"
)

// OpsServer serves the operational endpoints on a separate listener
// so health probes and metrics scrapes never compete with analysis
// traffic
type OpsServer struct {
	router   chi.Router
	recorder *usage.Recorder
	logger   *logx.Logger
}

// NewOpsServer builds the ops router
func NewOpsServer(recorder *usage.Recorder, logger *logx.Logger) *OpsServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	s := &OpsServer{router: r, recorder: recorder, logger: logger}
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	return s
}

// Run starts the ops listener
func (s *OpsServer) Run(port string) error {
	addr := ":" + port
	s.logger.Info("[Ops] listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests
func (s *OpsServer) Handler() http.Handler {
	return s.router
}

func (s *OpsServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleMetrics writes the usage counters in the Prometheus text
// exposition format
func (s *OpsServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.recorder.Snapshot()

	var sb strings.Builder
	writeCounter(&sb, "datalens_analyses_total", "Total analyses started", snap.AnalysesTotal)
	writeCounter(&sb, "datalens_analyses_failed_total", "Analyses that returned an error", snap.AnalysesFailed)
	writeCounter(&sb, "datalens_analyses_degraded_total", "Analyses that completed without AI insights", snap.AnalysesDegraded)
	writeCounter(&sb, "datalens_llm_tokens_total", "LLM tokens consumed", snap.TokensTotal)

	sb.WriteString("# HELP datalens_stage_seconds_total Cumulative wall-clock time per pipeline stage\n")
	sb.WriteString("# TYPE datalens_stage_seconds_total counter\n")
	stages := make([]string, 0, len(snap.StageSeconds))
	for stage := range snap.StageSeconds {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(&sb, "datalens_stage_seconds_total{stage=%q} %f\n", stage, snap.StageSeconds[stage])
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, sb.String())
}

func writeCounter(sb *strings.Builder, name, help string, value int64) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}
