package telemetry

import (
	"sort"
	"sync"
	"time"
)

const (
	HealthStatusOK       = "ok"
	HealthStatusStarting = "starting"
	HealthStatusDegraded = "degraded"
)

// HealthReport is the body served on /healthz.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// HealthTracker aggregates readiness of named components. The process is
// healthy once every declared component has reported ready.
type HealthTracker struct {
	mu         sync.RWMutex
	components map[string]string
	now        func() time.Time
}

func NewHealthTracker(components ...string) *HealthTracker {
	t := &HealthTracker{
		components: make(map[string]string, len(components)),
		now:        time.Now,
	}
	for _, name := range components {
		t.components[name] = HealthStatusStarting
	}
	return t
}

func (t *HealthTracker) SetReady(component string) {
	t.set(component, HealthStatusOK)
}

func (t *HealthTracker) SetDegraded(component string) {
	t.set(component, HealthStatusDegraded)
}

func (t *HealthTracker) set(component, status string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.components[component] = status
	t.mu.Unlock()
}

func (t *HealthTracker) Report() HealthReport {
	if t == nil {
		return HealthReport{Status: HealthStatusOK}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := HealthReport{
		Status:     HealthStatusOK,
		Components: make(map[string]string, len(t.components)),
		CheckedAt:  t.now(),
	}
	names := make([]string, 0, len(t.components))
	for name := range t.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := t.components[name]
		report.Components[name] = status
		if status != HealthStatusOK && report.Status == HealthStatusOK {
			report.Status = status
		}
	}
	return report
}
