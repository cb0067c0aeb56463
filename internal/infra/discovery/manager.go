package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/telemetry"
)

// Registrar is the discovery side of the registry API.
type Registrar interface {
	Register(ctx context.Context, target domain.ServiceTarget) (domain.ServiceTarget, error)
	Deregister(ctx context.Context, target domain.ServiceTarget) error
	Ping(ctx context.Context, id string) error
}

// IDStore keeps the registry-assigned service id across restarts.
type IDStore interface {
	ServiceID() (string, error)
	SetServiceID(id string) error
}

type AttemptKind string

const (
	AttemptRegister AttemptKind = "register"
	AttemptPing     AttemptKind = "ping"
)

// Attempt describes one tick of the registration loop.
type Attempt struct {
	Kind       AttemptKind
	Number     int
	Registered bool
	Err        error
}

// Callback runs after every attempt, successful or not.
type Callback func(ctx context.Context, attempt Attempt)

type ManagerOptions struct {
	Target       domain.ServiceTarget
	InitialDelay time.Duration
	Period       time.Duration
	WaitInterval time.Duration
	MaxRetries   int
	Registrar    Registrar
	IDStore      IDStore
	Logger       *zap.Logger
	Metrics      domain.Metrics
}

// Manager announces the service to the discovery registry on a timer and keeps
// the registration alive with pings.
type Manager struct {
	opts    ManagerOptions
	logger  *zap.Logger
	metrics domain.Metrics

	mu         sync.Mutex
	callbacks  []Callback
	target     domain.ServiceTarget
	registered bool
	started    bool

	exhausted chan struct{}
	done      chan struct{}
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	if opts.Period <= 0 {
		opts.Period = time.Duration(domain.DefaultRegistrationPeriodSecs) * time.Second
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = time.Duration(domain.DefaultRegistrationWaitSecs) * time.Second
	}
	if opts.Target.ServiceType == "" {
		opts.Target.ServiceType = domain.ServiceTypeMultiCapability
	}
	return &Manager{
		opts:      opts,
		logger:    logger.Named("registration"),
		metrics:   metrics,
		target:    opts.Target,
		exhausted: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (m *Manager) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
}

// Start launches the loop. It returns immediately; the loop stops when ctx is
// done or the retry budget is exhausted.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.restoreID()
	go m.run(ctx)
}

// Exhausted is closed once MaxRetries consecutive registrations failed.
func (m *Manager) Exhausted() <-chan struct{} {
	return m.exhausted
}

// Done is closed when the loop has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) Target() (domain.ServiceTarget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target, m.registered
}

// Deregister withdraws the service from the registry. It returns
// ErrNotRegistered when there is nothing to withdraw.
func (m *Manager) Deregister(ctx context.Context) error {
	m.mu.Lock()
	target, registered := m.target, m.registered
	m.registered = false
	m.mu.Unlock()

	if !registered {
		return domain.ErrNotRegistered
	}
	if err := m.opts.Registrar.Deregister(ctx, target); err != nil {
		return domain.Wrap(domain.CodeUnavailable, "deregister", err)
	}
	if m.opts.IDStore != nil {
		if err := m.opts.IDStore.SetServiceID(""); err != nil {
			m.logger.Warn("clear service id failed", zap.Error(err))
		}
	}
	m.logger.Info("service deregistered",
		telemetry.EventField(telemetry.EventDeregistered),
		telemetry.ServiceField(target.Service),
	)
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(m.opts.InitialDelay)
	defer timer.Stop()

	failures := 0
	number := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		number++
		attempt := m.tick(ctx, number)
		m.notify(ctx, attempt)

		next := m.opts.Period
		switch {
		case attempt.Kind == AttemptRegister && attempt.Err != nil:
			failures++
			if m.opts.MaxRetries > 0 && failures >= m.opts.MaxRetries {
				m.logger.Error("registration retry budget exhausted",
					telemetry.EventField(telemetry.EventRegisterFailure),
					zap.Int("attempts", failures),
					zap.Error(attempt.Err),
				)
				close(m.exhausted)
				return
			}
			next = m.opts.WaitInterval
		case attempt.Kind == AttemptRegister:
			failures = 0
		}
		timer.Reset(next)
	}
}

func (m *Manager) tick(ctx context.Context, number int) Attempt {
	m.mu.Lock()
	target, registered := m.target, m.registered
	m.mu.Unlock()

	if registered {
		err := m.opts.Registrar.Ping(ctx, target.ID)
		if err == nil {
			return Attempt{Kind: AttemptPing, Number: number, Registered: true}
		}
		m.logger.Warn("registry ping failed, registering again",
			telemetry.EventField(telemetry.EventPingFailure),
			zap.Error(err),
		)
		m.mu.Lock()
		m.registered = false
		m.mu.Unlock()
		return Attempt{Kind: AttemptPing, Number: number, Err: err}
	}

	result, err := m.opts.Registrar.Register(ctx, target)
	m.metrics.ObserveRegistrationAttempt(domain.OutcomeOf(err))
	if err != nil {
		m.logger.Warn("registration failed",
			telemetry.EventField(telemetry.EventRegisterFailure),
			telemetry.ServiceField(target.Service),
			zap.Int("attempt", number),
			zap.Error(err),
		)
		return Attempt{Kind: AttemptRegister, Number: number, Err: err}
	}

	m.mu.Lock()
	m.target = result
	m.registered = true
	m.mu.Unlock()
	if m.opts.IDStore != nil && result.ID != "" {
		if err := m.opts.IDStore.SetServiceID(result.ID); err != nil {
			m.logger.Warn("persist service id failed", zap.Error(err))
		}
	}
	m.logger.Info("service registered",
		telemetry.EventField(telemetry.EventRegistered),
		telemetry.ServiceField(result.Service),
		zap.String("id", result.ID),
		zap.String("address", result.Address()),
	)
	return Attempt{Kind: AttemptRegister, Number: number, Registered: true}
}

func (m *Manager) notify(ctx context.Context, attempt Attempt) {
	m.mu.Lock()
	callbacks := append([]Callback(nil), m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(ctx, attempt)
	}
}

func (m *Manager) restoreID() {
	if m.opts.IDStore == nil {
		return
	}
	id, err := m.opts.IDStore.ServiceID()
	if err != nil {
		m.logger.Warn("read service id failed", zap.Error(err))
		return
	}
	if id == "" {
		return
	}
	m.mu.Lock()
	if m.target.ID == "" {
		m.target.ID = id
	}
	m.mu.Unlock()
	m.logger.Debug("reusing service id", zap.String("id", id))
}
