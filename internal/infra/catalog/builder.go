package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/rules"
	"capd/internal/infra/telemetry"
)

// Recorder persists which entries are currently published.
type Recorder interface {
	MarkPublished(kind domain.CapabilityKind, name string) error
	MarkRetracted(kind domain.CapabilityKind, name string) error
	Published() ([]domain.RegisteredEntry, error)
}

type PublishReport struct {
	Published []domain.RegisteredEntry
	Failures  []*PublishError
}

type RetractReport struct {
	Retracted []domain.RegisteredEntry
	Failures  []*PublishError
}

// Err joins every failure of the retraction.
func (r RetractReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		errs = append(errs, failure)
	}
	return errors.Join(errs...)
}

type BuilderOptions struct {
	Service  string
	Client   ServicesClient
	Recorder Recorder
	Logger   *zap.Logger
	Metrics  domain.Metrics
}

// Builder turns rule specifications into catalogs and keeps the remote
// catalog in step with them.
type Builder struct {
	transformers map[domain.CapabilityKind]Transformer
	publishers   map[domain.CapabilityKind]Publisher
	recorder     Recorder
	logger       *zap.Logger
	metrics      domain.Metrics

	mu         sync.Mutex
	registered []domain.RegisteredEntry
}

func NewBuilder(opts BuilderOptions) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &Builder{
		transformers: map[domain.CapabilityKind]Transformer{
			domain.CapabilityTool:     ToolTransformer{Service: opts.Service},
			domain.CapabilityResource: ResourceTransformer{Service: opts.Service},
		},
		publishers: map[domain.CapabilityKind]Publisher{
			domain.CapabilityTool:     ToolPublisher{Client: opts.Client},
			domain.CapabilityResource: ResourcePublisher{Client: opts.Client},
		},
		recorder: opts.Recorder,
		logger:   logger.Named("catalog"),
		metrics:  metrics,
	}
}

// LoadAndPublish parses the rules at path, publishes every entry in file
// order and returns the resulting catalog. Only a parse failure is returned;
// rejected entries are logged and left out of the registered list.
func (b *Builder) LoadAndPublish(ctx context.Context, path string) (*Catalog, error) {
	set, err := rules.Load(path, b.logger)
	if err != nil {
		return nil, err
	}
	cat := NewCatalog(set)
	report := b.Publish(ctx, set.Entries)
	b.observeCatalog(cat)
	b.logger.Info("catalog published",
		zap.String("path", path),
		zap.Int("entries", cat.Len()),
		zap.Int("published", len(report.Published)),
		zap.Int("failed", len(report.Failures)),
	)
	return cat, nil
}

// Publish transforms and publishes entries one by one.
func (b *Builder) Publish(ctx context.Context, entries []domain.RuleEntry) PublishReport {
	var report PublishReport
	for _, entry := range entries {
		name := entry.Definition.Name
		transformer, publisher, err := b.strategy(entry.Kind)
		if err == nil {
			err = publisher.Publish(ctx, transformer.Transform(name, entry.Definition))
		}
		b.metrics.ObservePublish(entry.Kind, domain.OutcomeOf(err))
		if err != nil {
			failure := &PublishError{Kind: entry.Kind, Name: name, Err: err}
			report.Failures = append(report.Failures, failure)
			b.logger.Warn("publish failed",
				telemetry.EventField(telemetry.EventPublishFailure),
				telemetry.KindField(string(entry.Kind)),
				telemetry.EntryField(name),
				zap.Error(err),
			)
			continue
		}

		registered := domain.RegisteredEntry{Kind: entry.Kind, Name: name}
		b.mu.Lock()
		b.registered = append(b.registered, registered)
		b.mu.Unlock()
		report.Published = append(report.Published, registered)
		b.record(registered, true)
		b.logger.Debug("published",
			telemetry.EventField(telemetry.EventPublished),
			telemetry.KindField(string(entry.Kind)),
			telemetry.EntryField(name),
		)
	}
	return report
}

// Retract removes every registered entry from the remote catalog and drains
// the registered list. A failed removal does not stop the others.
func (b *Builder) Retract(ctx context.Context) RetractReport {
	b.mu.Lock()
	entries := b.registered
	b.registered = nil
	b.mu.Unlock()
	return b.retract(ctx, entries)
}

// RetractEntries removes specific entries and forgets them.
func (b *Builder) RetractEntries(ctx context.Context, entries []domain.RegisteredEntry) RetractReport {
	if len(entries) == 0 {
		return RetractReport{}
	}
	drop := make(map[domain.RegisteredEntry]struct{}, len(entries))
	for _, entry := range entries {
		drop[entry] = struct{}{}
	}
	b.mu.Lock()
	kept := b.registered[:0:0]
	for _, entry := range b.registered {
		if _, ok := drop[entry]; !ok {
			kept = append(kept, entry)
		}
	}
	b.registered = kept
	b.mu.Unlock()
	return b.retract(ctx, entries)
}

// CleanupStale retracts entries a previous process recorded as published but
// never retracted.
func (b *Builder) CleanupStale(ctx context.Context) RetractReport {
	if b.recorder == nil {
		return RetractReport{}
	}
	stale, err := b.recorder.Published()
	if err != nil {
		b.logger.Warn("read published entries failed", zap.Error(err))
		return RetractReport{}
	}
	if len(stale) > 0 {
		b.logger.Info("retracting stale catalog entries", zap.Int("count", len(stale)))
	}
	return b.retract(ctx, stale)
}

// Registered returns a copy of the entries currently published.
func (b *Builder) Registered() []domain.RegisteredEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.RegisteredEntry, len(b.registered))
	copy(out, b.registered)
	return out
}

func (b *Builder) retract(ctx context.Context, entries []domain.RegisteredEntry) RetractReport {
	var report RetractReport
	for _, entry := range entries {
		_, publisher, err := b.strategy(entry.Kind)
		if err == nil {
			err = publisher.Retract(ctx, entry.Name)
		}
		if err != nil {
			report.Failures = append(report.Failures, &PublishError{Kind: entry.Kind, Name: entry.Name, Err: err})
			b.logger.Warn("retract failed",
				telemetry.EventField(telemetry.EventRetractFailure),
				telemetry.KindField(string(entry.Kind)),
				telemetry.EntryField(entry.Name),
				zap.Error(err),
			)
			continue
		}
		report.Retracted = append(report.Retracted, entry)
		b.record(entry, false)
		b.logger.Debug("retracted",
			telemetry.EventField(telemetry.EventRetracted),
			telemetry.KindField(string(entry.Kind)),
			telemetry.EntryField(entry.Name),
		)
	}
	return report
}

func (b *Builder) strategy(kind domain.CapabilityKind) (Transformer, Publisher, error) {
	transformer, ok := b.transformers[kind]
	if !ok {
		return nil, nil, fmt.Errorf("unknown capability kind %q", kind)
	}
	return transformer, b.publishers[kind], nil
}

func (b *Builder) record(entry domain.RegisteredEntry, published bool) {
	if b.recorder == nil {
		return
	}
	var err error
	if published {
		err = b.recorder.MarkPublished(entry.Kind, entry.Name)
	} else {
		err = b.recorder.MarkRetracted(entry.Kind, entry.Name)
	}
	if err != nil {
		b.logger.Warn("record catalog state failed", telemetry.EntryField(entry.Name), zap.Error(err))
	}
}

func (b *Builder) observeCatalog(cat *Catalog) {
	b.metrics.SetCatalogEntries(domain.CapabilityTool, len(cat.Names(domain.CapabilityTool)))
	b.metrics.SetCatalogEntries(domain.CapabilityResource, len(cat.Names(domain.CapabilityResource)))
}
