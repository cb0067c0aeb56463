package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capd/internal/domain"
)

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveInvocation(domain.CapabilityTool, domain.OutcomeSuccess, 10*time.Millisecond)
	m.ObservePublish(domain.CapabilityResource, domain.OutcomeError)
	m.SetCatalogEntries(domain.CapabilityTool, 3)
	m.ObserveRegistrationAttempt(domain.OutcomeSuccess)
	m.ObserveDownload(domain.ResourceRules, domain.OutcomeSuccess)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}

	assert.Contains(t, names, "capd_invocations_total")
	assert.Contains(t, names, "capd_invocation_duration_seconds")
	assert.Contains(t, names, "capd_publish_total")
	assert.Contains(t, names, "capd_catalog_entries")
	assert.Contains(t, names, "capd_registration_attempts_total")
	assert.Contains(t, names, "capd_downloads_total")
}

func TestPrometheusMetrics_CatalogGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)
	m.SetCatalogEntries(domain.CapabilityTool, 2)
	m.SetCatalogEntries(domain.CapabilityTool, 5)

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "capd_catalog_entries" {
			continue
		}
		require.Len(t, family.GetMetric(), 1)
		require.Equal(t, float64(5), family.GetMetric()[0].GetGauge().GetValue())
		return
	}
	t.Fatal("capd_catalog_entries not gathered")
}
