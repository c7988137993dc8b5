// health.go — probes Kubernetes и метрики Prometheus.
package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/identity-module/internal/config"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает "ok", "degraded" или "fail" и пояснение.
	CheckReady() (status string, message string)
}

const (
	serviceName = "identity-module"

	readyOK       = "ok"
	readyDegraded = "degraded"
	readyFail     = "fail"
)

type namedChecker struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler отвечает на /health/live, /health/ready и /metrics.
type HealthHandler struct {
	checks      []namedChecker
	startedAt   time.Time
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик probes. Nil-проверка считается
// неинициализированной зависимостью и даёт "fail".
func NewHealthHandler(pgChecker, kcChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: []namedChecker{
			{name: "postgresql", checker: pgChecker},
			{name: "keycloak", checker: kcChecker},
		},
		startedAt:   time.Now(),
		promHandler: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
	Service       string `json:"service"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — процесс жив, зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:        readyOK,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       config.Version,
		Service:       serviceName,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HealthReady опрашивает зависимости параллельно. 503 только при "fail".
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	results := h.runChecks()

	statuses := make([]string, 0, len(results))
	for _, res := range results {
		statuses = append(statuses, res.Status)
	}

	resp := healthReadyResponse{
		Status:    overallStatus(statuses...),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    results,
	}

	status := http.StatusOK
	if resp.Status == readyFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func (h *HealthHandler) runChecks() map[string]healthCheckResult {
	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]healthCheckResult, len(h.checks))
	)

	for _, c := range h.checks {
		g.Go(func() error {
			res := healthCheckResult{Status: readyFail, Message: "не инициализирован"}
			if c.checker != nil {
				st, msg := c.checker.CheckReady()
				res = healthCheckResult{Status: st, Message: msg}
			}
			mu.Lock()
			results[c.name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// overallStatus: любой fail даёт fail, иначе любой degraded даёт degraded.
func overallStatus(statuses ...string) string {
	result := readyOK
	for _, s := range statuses {
		switch s {
		case readyFail:
			return readyFail
		case readyDegraded:
			result = readyDegraded
		}
	}
	return result
}
