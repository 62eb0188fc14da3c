package handler

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/appmeta/appmeta/internal/api/models"
	"github.com/appmeta/appmeta/internal/api/response"
	"github.com/appmeta/appmeta/internal/provider/resilience"
)

// HealthReporter reports upstream client health. *resilience.Registry implements it.
type HealthReporter interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  HealthReporter
	draining  atomic.Bool
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry HealthReporter) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		now:       time.Now,
	}
}

// SetDraining marks the instance as shutting down so readiness fails and the
// load balancer stops routing new exports here.
func (h *OpsHandler) SetDraining() {
	h.draining.Store(true)
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		response.ServiceUnavailable(w, r, "Server is shutting down")
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - upstream client status.
// The overall status is the worst provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worse(status.Status, ps.Status)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
	}
	switch ph.Status() {
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	default:
		ps.Status = models.HealthStatusOK
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

var statusRank = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}
