package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
)

const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkTimeout   = "timeout"
	checkDegraded  = "degraded"
)

// Per-endpoint budgets for running every registered check.
const (
	aggregateBudget = 5 * time.Second
	liveBudget      = 2 * time.Second
	readyBudget     = 5 * time.Second
	startupBudget   = 3 * time.Second
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is returned by the live, ready and startup probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthManager owns the named checks behind the /health endpoints.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checkers: map[string]HealthChecker{}}
}

// RegisterChecker adds or replaces the check under name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	if hm == nil || checker == nil {
		return
	}
	hm.mu.Lock()
	hm.checkers[name] = checker
	hm.mu.Unlock()
}

// healthReport is the outcome of one pass over the registered checks.
type healthReport struct {
	checks map[string]string
	status string
}

// failing lists the checks that did not pass, sorted.
func (r healthReport) failing() []string {
	var names []string
	for name, result := range r.checks {
		if result != checkHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// check runs every checker in name order. Once ctx expires the remaining
// checks are recorded as timeouts without being run.
func (hm *HealthManager) check(ctx context.Context) healthReport {
	hm.mu.RLock()
	pending := make(map[string]HealthChecker, len(hm.checkers))
	for name, c := range hm.checkers {
		pending[name] = c
	}
	hm.mu.RUnlock()

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		switch {
		case ctx.Err() != nil:
			checks[name] = checkTimeout
		case pending[name].CheckHealth(ctx) != nil:
			checks[name] = checkUnhealthy
		default:
			checks[name] = checkHealthy
		}
	}
	return healthReport{checks: checks, status: overallStatus(checks)}
}

// overallStatus is unhealthy if any check failed, degraded if any timed out.
func overallStatus(checks map[string]string) string {
	status := checkHealthy
	for _, result := range checks {
		switch result {
		case checkUnhealthy:
			return checkUnhealthy
		case checkTimeout, checkDegraded:
			status = checkDegraded
		}
	}
	return status
}

func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := hm.serve(w, r, "", aggregateBudget)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    report.status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    report.checks,
	})
}

func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", liveBudget)
}

// ReadinessHandler fails until the ledger is loaded.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", readyBudget)
}

func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", startupBudget)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, budget time.Duration) {
	if report, ok := hm.serve(w, r, name, budget); ok {
		writeJSON(w, http.StatusOK, ProbeResponse{Status: report.status, Timestamp: time.Now().UTC()})
	}
}

// serve runs the checks under budget. On failure it writes a 503 envelope and
// returns false.
func (hm *HealthManager) serve(w http.ResponseWriter, r *http.Request, probe string, budget time.Duration) (healthReport, bool) {
	if hm == nil {
		respondWithError(w, r, unavailable("health manager not initialized", probe, healthReport{status: "unknown"}))
		return healthReport{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), budget)
	defer cancel()

	report := hm.check(ctx)
	if report.status != checkUnhealthy {
		return report, true
	}

	message := "aggregate health check failed"
	if probe != "" {
		message = probe + " probe failed"
	}
	respondWithError(w, r, unavailable(message, probe, report))
	return healthReport{}, false
}

func unavailable(message, probe string, report healthReport) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": report.status}
	logCtx := map[string]interface{}{"status": report.status}
	if probe != "" {
		details["probe"] = probe
		logCtx["probe"] = probe
	}
	if len(report.checks) > 0 {
		details["checks"] = report.checks
	}
	if failing := report.failing(); len(failing) > 0 {
		logCtx["unhealthy_checks"] = failing
	}

	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message).WithDetails(details)
	if withCtx, err := envelope.WithContext(logCtx); err == nil {
		envelope = withCtx
	}
	return envelope
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
