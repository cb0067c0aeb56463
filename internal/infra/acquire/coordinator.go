package acquire

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"capd/internal/domain"
	"capd/internal/infra/resource"
	"capd/internal/infra/telemetry"
)

// WaitPolicy decides how long Wait blocks for unresolved resources.
type WaitPolicy int

const (
	// WaitForever blocks until every reference resolves. A remote store may only
	// become reachable after the registry itself answers.
	WaitForever WaitPolicy = iota
	// NoWait gives up after the first attempt finishes.
	NoWait
)

func (p WaitPolicy) String() string {
	switch p {
	case WaitForever:
		return "wait-forever"
	case NoWait:
		return "no-wait"
	default:
		return fmt.Sprintf("WaitPolicy(%d)", int(p))
	}
}

// FetchError reports a failed acquisition of a single kind.
type FetchError struct {
	Kind domain.ResourceKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Resolve fetches every reference missing from current and returns the
// updated set together with the failures of this pass. current is never
// mutated and resolved kinds are never fetched again. Kinds are fetched
// concurrently; failures keep the order of refs.
func Resolve(ctx context.Context, current domain.DownloadedResources, refs []domain.ResourceReference, fetcher resource.Fetcher) (domain.DownloadedResources, []*FetchError) {
	type result struct {
		path    string
		err     error
		fetched bool
	}
	results := make([]result, len(refs))

	var group errgroup.Group
	for i, ref := range refs {
		if _, ok := current[ref.Kind]; ok {
			continue
		}
		group.Go(func() error {
			path, err := fetcher.Fetch(ctx, ref)
			results[i] = result{path: path, err: err, fetched: true}
			return nil
		})
	}
	_ = group.Wait()

	next := current.Clone()
	var failures []*FetchError
	for i, ref := range refs {
		res := results[i]
		if !res.fetched {
			continue
		}
		if res.err != nil {
			failures = append(failures, &FetchError{Kind: ref.Kind, Err: res.err})
			continue
		}
		if _, ok := next[ref.Kind]; !ok {
			next[ref.Kind] = res.path
		}
	}
	return next, failures
}

// Coordinator acquires the startup artifacts, one attempt per registration tick.
type Coordinator struct {
	fetcher resource.Fetcher
	refs    []domain.ResourceReference
	policy  WaitPolicy
	logger  *zap.Logger
	metrics domain.Metrics

	mu        sync.Mutex
	resolved  domain.DownloadedResources
	attempts  int
	lastErrs  []*FetchError
	attempted chan struct{}
	complete  chan struct{}
}

func NewCoordinator(fetcher resource.Fetcher, refs []domain.ResourceReference, policy WaitPolicy, logger *zap.Logger, metrics domain.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	c := &Coordinator{
		fetcher:   fetcher,
		refs:      append([]domain.ResourceReference(nil), refs...),
		policy:    policy,
		logger:    logger.Named("acquire"),
		metrics:   metrics,
		resolved:  domain.DownloadedResources{},
		attempted: make(chan struct{}),
		complete:  make(chan struct{}),
	}
	if len(c.refs) == 0 {
		close(c.complete)
	}
	return c
}

// OnAttempt runs one acquisition pass. It is safe to call from the
// registration goroutine while another goroutine blocks in Wait.
func (c *Coordinator) OnAttempt(ctx context.Context) {
	c.mu.Lock()
	current := c.resolved.Clone()
	c.mu.Unlock()

	if len(current) == len(c.refs) {
		c.finishAttempt(current, nil)
		return
	}

	next, failures := Resolve(ctx, current, c.refs, c.fetcher)
	for kind := range next {
		if _, ok := current[kind]; !ok {
			c.metrics.ObserveDownload(kind, domain.OutcomeSuccess)
		}
	}
	for _, failure := range failures {
		c.metrics.ObserveDownload(failure.Kind, domain.OutcomeError)
		c.logger.Warn("resource acquisition failed",
			telemetry.KindField(string(failure.Kind)),
			zap.Error(failure.Err),
		)
	}
	c.finishAttempt(next, failures)
}

func (c *Coordinator) finishAttempt(next domain.DownloadedResources, failures []*FetchError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for kind, path := range next {
		if _, ok := c.resolved[kind]; ok {
			continue
		}
		c.resolved[kind] = path
	}
	c.attempts++
	c.lastErrs = failures

	if c.attempts == 1 {
		close(c.attempted)
	}
	if len(c.resolved) == len(c.refs) && !isClosed(c.complete) {
		c.logger.Info("all resources acquired", zap.Int("attempts", c.attempts))
		close(c.complete)
	}
}

// Wait blocks according to the policy and reports whether every reference
// resolved. It returns the cancellation cause when ctx ends first.
func (c *Coordinator) Wait(ctx context.Context) (bool, error) {
	switch c.policy {
	case NoWait:
		select {
		case <-c.complete:
			return true, nil
		case <-c.attempted:
			return c.isComplete(), nil
		case <-ctx.Done():
			return false, context.Cause(ctx)
		}
	default:
		select {
		case <-c.complete:
			return true, nil
		case <-ctx.Done():
			return false, context.Cause(ctx)
		}
	}
}

// Resources returns the acquired paths. It fails until every kind resolved.
func (c *Coordinator) Resources() (domain.DownloadedResources, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resolved) != len(c.refs) {
		return nil, fmt.Errorf("%w: missing %v", domain.ErrResourcesIncomplete, c.missingLocked())
	}
	return c.resolved.Clone(), nil
}

// Err joins the failures of the most recent attempt.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, 0, len(c.lastErrs))
	for _, failure := range c.lastErrs {
		errs = append(errs, failure)
	}
	return errors.Join(errs...)
}

func (c *Coordinator) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Coordinator) isComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resolved) == len(c.refs)
}

func (c *Coordinator) missingLocked() []string {
	var missing []string
	for _, ref := range c.refs {
		if _, ok := c.resolved[ref.Kind]; !ok {
			missing = append(missing, string(ref.Kind))
		}
	}
	sort.Strings(missing)
	return missing
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
