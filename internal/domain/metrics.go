package domain

import "time"

// Outcome labels the result of an observed operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// Metrics receives runtime observations.
type Metrics interface {
	ObserveInvocation(kind CapabilityKind, outcome Outcome, duration time.Duration)
	ObservePublish(kind CapabilityKind, outcome Outcome)
	SetCatalogEntries(kind CapabilityKind, count int)
	ObserveRegistrationAttempt(outcome Outcome)
	ObserveDownload(kind ResourceKind, outcome Outcome)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveInvocation(CapabilityKind, Outcome, time.Duration) {}
func (NoopMetrics) ObservePublish(CapabilityKind, Outcome)                   {}
func (NoopMetrics) SetCatalogEntries(CapabilityKind, int)                    {}
func (NoopMetrics) ObserveRegistrationAttempt(Outcome)                       {}
func (NoopMetrics) ObserveDownload(ResourceKind, Outcome)                    {}
