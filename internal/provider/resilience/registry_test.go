package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmeta/appmeta/internal/provider/resilience"
)

func registerClient(registry *resilience.Registry, name string) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func TestRegistry_RegisterAndGetHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	registerClient(registry, "apptweak")

	assert.Equal(t, 1, registry.ProviderCount())

	health := registry.GetHealth("apptweak")
	require.NotNil(t, health)
	assert.Equal(t, "apptweak", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Equal(t, resilience.StatusHealthy, health.Status())
}

func TestRegistry_RegisterReplacesExisting(t *testing.T) {
	registry := resilience.NewRegistry()
	registerClient(registry, "apptweak")
	registry.RecordFailure("apptweak", assert.AnError)

	registerClient(registry, "apptweak")

	assert.Equal(t, 1, registry.ProviderCount())
	health := registry.GetHealth("apptweak")
	require.NotNil(t, health)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_RecordSuccessAndFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	registerClient(registry, "assets")

	health := registry.GetHealth("assets")
	require.NotNil(t, health)
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.Empty(t, health.LastError)

	registry.RecordSuccess("assets")
	registry.RecordFailure("assets", assert.AnError)

	health = registry.GetHealth("assets")
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		registerClient(registry, name)
	}

	health := registry.GetAllHealth()
	require.Len(t, health, 3)
	assert.Equal(t, "a", health[0].Name)
	assert.Equal(t, "b", health[1].Name)
	assert.Equal(t, "c", health[2].Name)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
}

func TestProviderHealth_Status(t *testing.T) {
	tests := []struct {
		name     string
		state    gobreaker.State
		failures uint32
		expected string
	}{
		{"closed", gobreaker.StateClosed, 0, resilience.StatusHealthy},
		{"closed short streak", gobreaker.StateClosed, resilience.DegradedAfterFailures - 1, resilience.StatusHealthy},
		{"closed failing", gobreaker.StateClosed, resilience.DegradedAfterFailures, resilience.StatusDegraded},
		{"half-open", gobreaker.StateHalfOpen, 0, resilience.StatusDegraded},
		{"open", gobreaker.StateOpen, 0, resilience.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &resilience.ProviderHealth{
				CircuitState: tt.state,
				Counts:       gobreaker.Counts{ConsecutiveFailures: tt.failures},
			}
			assert.Equal(t, tt.expected, h.Status())
		})
	}
}
