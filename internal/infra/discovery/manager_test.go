package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"capd/internal/domain"
)

type registrarStub struct {
	mu           sync.Mutex
	failRegister int
	failPing     int
	registers    int
	pings        int
	deregistered []domain.ServiceTarget
	seenIDs      []string
}

func (r *registrarStub) Register(_ context.Context, target domain.ServiceTarget) (domain.ServiceTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registers++
	r.seenIDs = append(r.seenIDs, target.ID)
	if r.failRegister > 0 {
		r.failRegister--
		return domain.ServiceTarget{}, errors.New("registry down")
	}
	if target.ID == "" {
		target.ID = "assigned-id"
	}
	return target, nil
}

func (r *registrarStub) Deregister(_ context.Context, target domain.ServiceTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregistered = append(r.deregistered, target)
	return nil
}

func (r *registrarStub) Ping(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings++
	if r.failPing > 0 {
		r.failPing--
		return errors.New("unknown service")
	}
	return nil
}

func (r *registrarStub) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registers, r.pings
}

type idStoreStub struct {
	mu sync.Mutex
	id string
}

func (s *idStoreStub) ServiceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *idStoreStub) SetServiceID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func fastManager(registrar Registrar, store IDStore, retries int) *Manager {
	return NewManager(ManagerOptions{
		Target:       domain.ServiceTarget{Service: "camel", Host: "127.0.0.1", Port: 9190},
		InitialDelay: time.Millisecond,
		Period:       5 * time.Millisecond,
		WaitInterval: 2 * time.Millisecond,
		MaxRetries:   retries,
		Registrar:    registrar,
		IDStore:      store,
	})
}

func TestManagerRegistersAndInvokesCallbacks(t *testing.T) {
	registrar := &registrarStub{failRegister: 2}
	store := &idStoreStub{}
	manager := fastManager(registrar, store, 5)

	attempts := make(chan Attempt, 64)
	manager.AddCallback(func(_ context.Context, attempt Attempt) {
		select {
		case attempts <- attempt:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)

	var failed, succeeded int
	for succeeded == 0 {
		select {
		case attempt := <-attempts:
			require.Equal(t, AttemptRegister, attempt.Kind)
			if attempt.Err != nil {
				failed++
				continue
			}
			succeeded++
		case <-time.After(5 * time.Second):
			t.Fatal("registration did not succeed")
		}
	}
	require.Equal(t, 2, failed)

	target, registered := manager.Target()
	require.True(t, registered)
	require.Equal(t, "assigned-id", target.ID)
	require.Equal(t, domain.ServiceTypeMultiCapability, target.ServiceType)
	require.Eventually(t, func() bool {
		id, _ := store.ServiceID()
		return id == "assigned-id"
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		_, pings := registrar.counts()
		return pings > 0
	}, 5*time.Second, time.Millisecond)

	cancel()
	<-manager.Done()

	require.NoError(t, manager.Deregister(context.Background()))
	require.Len(t, registrar.deregistered, 1)
	id, _ := store.ServiceID()
	require.Empty(t, id)
	require.ErrorIs(t, manager.Deregister(context.Background()), domain.ErrNotRegistered)
}

func TestManagerExhaustsRetryBudget(t *testing.T) {
	registrar := &registrarStub{failRegister: 100}
	manager := fastManager(registrar, nil, 3)

	var mu sync.Mutex
	calls := 0
	manager.AddCallback(func(context.Context, Attempt) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	manager.Start(context.Background())

	select {
	case <-manager.Exhausted():
	case <-time.After(5 * time.Second):
		t.Fatal("retry budget was not exhausted")
	}
	<-manager.Done()

	registers, _ := registrar.counts()
	require.Equal(t, 3, registers)
	mu.Lock()
	require.Equal(t, 3, calls)
	mu.Unlock()
}

func TestManagerReregistersAfterPingFailure(t *testing.T) {
	registrar := &registrarStub{failPing: 1}
	manager := fastManager(registrar, nil, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	require.Eventually(t, func() bool {
		registers, pings := registrar.counts()
		return registers >= 2 && pings >= 2
	}, 5*time.Second, time.Millisecond)
}

func TestManagerReusesPersistedID(t *testing.T) {
	registrar := &registrarStub{}
	manager := fastManager(registrar, &idStoreStub{id: "persisted"}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	require.Eventually(t, func() bool {
		_, registered := manager.Target()
		return registered
	}, 5*time.Second, time.Millisecond)
	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	require.Equal(t, "persisted", registrar.seenIDs[0])
}
