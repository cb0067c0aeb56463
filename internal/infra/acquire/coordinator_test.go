package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"capd/internal/domain"
)

type fetcherStub struct {
	mu       sync.Mutex
	failures map[domain.ResourceKind]int
	calls    map[domain.ResourceKind]int
}

func newFetcherStub() *fetcherStub {
	return &fetcherStub{
		failures: map[domain.ResourceKind]int{},
		calls:    map[domain.ResourceKind]int{},
	}
}

func (f *fetcherStub) Fetch(_ context.Context, ref domain.ResourceReference) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ref.Kind]++
	if f.failures[ref.Kind] > 0 {
		f.failures[ref.Kind]--
		return "", errors.New("store unreachable")
	}
	return "/data/" + string(ref.Kind), nil
}

func (f *fetcherStub) callCount(kind domain.ResourceKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func testRefs() []domain.ResourceReference {
	return []domain.ResourceReference{
		{Kind: domain.ResourceRoutes, Scheme: domain.SchemeDatastore, Path: "routes.yaml"},
		{Kind: domain.ResourceRules, Scheme: domain.SchemeDatastore, Path: "rules.yaml"},
		{Kind: domain.ResourceDependencies, Scheme: domain.SchemeFile, Path: "/deps.txt"},
	}
}

func TestCoordinator_AllResolveOnFirstAttempt(t *testing.T) {
	fetcher := newFetcherStub()
	c := NewCoordinator(fetcher, testRefs(), WaitForever, zap.NewNop(), nil)

	c.OnAttempt(context.Background())

	ok, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	resources, err := c.Resources()
	require.NoError(t, err)
	require.Equal(t, domain.DownloadedResources{
		domain.ResourceRoutes:       "/data/routes",
		domain.ResourceRules:        "/data/rules",
		domain.ResourceDependencies: "/data/dependencies",
	}, resources)
}

func TestCoordinator_NoWaitReturnsFalseAfterFirstAttempt(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.failures[domain.ResourceRules] = 1
	c := NewCoordinator(fetcher, testRefs(), NoWait, zap.NewNop(), nil)

	c.OnAttempt(context.Background())

	ok, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Error(t, c.Err())

	_, err = c.Resources()
	require.ErrorIs(t, err, domain.ErrResourcesIncomplete)
}

func TestCoordinator_RetriesUnresolvedAndSkipsResolved(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.failures[domain.ResourceRules] = 1
	c := NewCoordinator(fetcher, testRefs(), WaitForever, zap.NewNop(), nil)

	c.OnAttempt(context.Background())
	require.Equal(t, 1, fetcher.callCount(domain.ResourceRoutes))
	require.Equal(t, 1, fetcher.callCount(domain.ResourceRules))

	c.OnAttempt(context.Background())
	require.Equal(t, 1, fetcher.callCount(domain.ResourceRoutes))
	require.Equal(t, 2, fetcher.callCount(domain.ResourceRules))

	c.OnAttempt(context.Background())
	require.Equal(t, 1, fetcher.callCount(domain.ResourceRoutes))
	require.Equal(t, 2, fetcher.callCount(domain.ResourceRules))
	require.Equal(t, 3, c.Attempts())
	require.NoError(t, c.Err())

	ok, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCoordinator_WaitForeverBlocksUntilComplete(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.failures[domain.ResourceRoutes] = 2
	c := NewCoordinator(fetcher, testRefs(), WaitForever, zap.NewNop(), nil)

	done := make(chan bool, 1)
	go func() {
		ok, _ := c.Wait(context.Background())
		done <- ok
	}()

	c.OnAttempt(context.Background())
	c.OnAttempt(context.Background())
	select {
	case <-done:
		t.Fatal("wait returned before resources resolved")
	case <-time.After(50 * time.Millisecond):
	}

	c.OnAttempt(context.Background())
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resources resolved")
	}
}

func TestCoordinator_WaitEndsWithCancellationCause(t *testing.T) {
	fetcher := newFetcherStub()
	fetcher.failures[domain.ResourceRoutes] = 100
	c := NewCoordinator(fetcher, testRefs(), WaitForever, zap.NewNop(), nil)

	ctx, cancel := context.WithCancelCause(context.Background())
	c.OnAttempt(ctx)
	cancel(domain.ErrRegistrationExhausted)

	ok, err := c.Wait(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, domain.ErrRegistrationExhausted)
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	current := domain.DownloadedResources{domain.ResourceRoutes: "/already/there"}
	next, failures := Resolve(context.Background(), current, testRefs(), newFetcherStub())

	require.Empty(t, failures)
	require.Len(t, current, 1)
	require.Len(t, next, 3)
	require.Equal(t, "/already/there", next[domain.ResourceRoutes])
}

func TestCoordinator_NoReferencesIsComplete(t *testing.T) {
	c := NewCoordinator(newFetcherStub(), nil, WaitForever, zap.NewNop(), nil)
	ok, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	resources, err := c.Resources()
	require.NoError(t, err)
	require.Empty(t, resources)
}

// barrierFetcher only answers once every expected kind is being fetched.
type barrierFetcher struct {
	arrived sync.WaitGroup
}

func (f *barrierFetcher) Fetch(ctx context.Context, ref domain.ResourceReference) (string, error) {
	f.arrived.Done()
	done := make(chan struct{})
	go func() {
		f.arrived.Wait()
		close(done)
	}()
	select {
	case <-done:
		return "/data/" + string(ref.Kind), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestResolve_FetchesKindsConcurrently(t *testing.T) {
	fetcher := &barrierFetcher{}
	fetcher.arrived.Add(2)
	current := domain.DownloadedResources{domain.ResourceRoutes: "/data/routes"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	next, failures := Resolve(ctx, current, testRefs(), fetcher)

	require.Empty(t, failures)
	require.Equal(t, domain.DownloadedResources{
		domain.ResourceRoutes:       "/data/routes",
		domain.ResourceRules:        "/data/rules",
		domain.ResourceDependencies: "/data/dependencies",
	}, next)
	require.Len(t, current, 1)
}
