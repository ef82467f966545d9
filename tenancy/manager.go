// Package tenancy resolves tenants against the master catalog and keeps a
// bounded pool of per-tenant store handles.
package tenancy

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/singleflight"
)

const acquireAttempts = 3

var errEvictedWhileAcquiring = errors.New("tenant handle evicted before it was leased")

// Handle is one open tenant store.
type Handle interface {
	Repos() *repositories.Set
	Close(ctx context.Context) error
}

// Connector opens the store of a tenant.
type Connector interface {
	Open(ctx context.Context, tenant *models.Tenant) (Handle, error)
}

type ConnectorFunc func(ctx context.Context, tenant *models.Tenant) (Handle, error)

func (f ConnectorFunc) Open(ctx context.Context, tenant *models.Tenant) (Handle, error) {
	return f(ctx, tenant)
}

type Options struct {
	// MaxTenants caps the number of cached handles. Leased handles are never
	// evicted, so the pool may exceed the cap while all of them are in use.
	MaxTenants int
	// IdleTTL closes handles that have not been leased for this long.
	// Zero disables the idle sweep.
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type poolEntry struct {
	tenant   *models.Tenant
	handle   Handle
	refs     int
	lastUsed time.Time
}

// Manager is safe for concurrent use.
type Manager struct {
	catalog   repositories.TenantRepository
	connector Connector
	logger    *slog.Logger
	opts      Options

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	group   singleflight.Group
	now     func() time.Time

	scheduler gocron.Scheduler
}

func NewManager(catalog repositories.TenantRepository, connector Connector, opts Options, logger *slog.Logger) *Manager {
	if opts.MaxTenants <= 0 {
		opts.MaxTenants = 64
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		catalog:   catalog,
		connector: connector,
		logger:    logger,
		opts:      opts,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		now:       time.Now,
	}
}

// Resolve looks the tenant up by slug and then by id.
func (m *Manager) Resolve(ctx context.Context, identity string) (*models.Tenant, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: empty tenant identity", services.ErrNotFound)
	}
	tenant, err := m.catalog.GetBySlug(ctx, identity)
	if errors.Is(err, repositories.ErrTenantNotFound) {
		tenant, err = m.catalog.GetByID(ctx, identity)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrTenantNotFound) {
			return nil, fmt.Errorf("%w: tenant %q", services.ErrNotFound, identity)
		}
		return nil, fmt.Errorf("%w: resolving tenant %q: %v", services.ErrConnectionFailure, identity, err)
	}
	if !tenant.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", services.ErrTenantInactive, tenant.Slug, tenant.Status)
	}
	return tenant, nil
}

// Acquire leases the tenant's handle, opening it on first use. Concurrent
// first access to the same tenant opens exactly one handle.
func (m *Manager) Acquire(ctx context.Context, tenant *models.Tenant) (*Lease, error) {
	if !tenant.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", services.ErrTenantInactive, tenant.Slug, tenant.Status)
	}

	var lease *Lease
	acquire := func() error {
		if lease = m.tryLease(tenant.ID); lease != nil {
			acquireTotal.WithLabelValues("hit").Inc()
			return nil
		}

		_, err, _ := m.group.Do(tenant.ID, func() (interface{}, error) {
			m.mu.Lock()
			_, cached := m.entries[tenant.ID]
			m.mu.Unlock()
			if cached {
				return nil, nil
			}
			// The first caller's cancellation must not fail the others
			// waiting on the same open.
			handle, err := m.connector.Open(context.WithoutCancel(ctx), tenant)
			if err != nil {
				return nil, err
			}
			m.insert(tenant, handle)
			return nil, nil
		})
		if err != nil {
			acquireTotal.WithLabelValues("error").Inc()
			m.logger.Error("failed to open tenant store", "tenant", tenant.Slug, "error", err)
			return backoff.Permanent(fmt.Errorf("%w: tenant %s: %v", services.ErrConnectionFailure, tenant.Slug, err))
		}
		acquireTotal.WithLabelValues("miss").Inc()
		// A fresh handle can be evicted before this caller leases it.
		return errEvictedWhileAcquiring
	}

	err := backoff.Retry(acquire, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, acquireAttempts-1))
	if errors.Is(err, errEvictedWhileAcquiring) {
		return nil, fmt.Errorf("%w: tenant %s was evicted while being acquired", services.ErrConnectionFailure, tenant.Slug)
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (m *Manager) tryLease(tenantID string) *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.entries[tenantID]
	if !ok {
		return nil
	}
	entry := elem.Value.(*poolEntry)
	entry.refs++
	entry.lastUsed = m.now()
	m.order.MoveToFront(elem)
	return &Lease{manager: m, entry: entry}
}

func (m *Manager) insert(tenant *models.Tenant, handle Handle) {
	m.mu.Lock()
	entry := &poolEntry{
		tenant:   tenant,
		handle:   handle,
		lastUsed: m.now(),
	}
	m.entries[tenant.ID] = m.order.PushFront(entry)
	evicted := m.evictLocked(entry)
	openHandles.Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.logger.Info("tenant store opened", "tenant", tenant.Slug)
	m.closeAll(evicted, "lru")
}

// evictLocked drops idle entries other than keep from the cold end until
// the pool fits. With every entry leased the pool stays above MaxTenants.
func (m *Manager) evictLocked(keep *poolEntry) []*poolEntry {
	var evicted []*poolEntry
	elem := m.order.Back()
	for len(m.entries) > m.opts.MaxTenants && elem != nil {
		prev := elem.Prev()
		entry := elem.Value.(*poolEntry)
		if entry.refs == 0 && entry != keep {
			m.order.Remove(elem)
			delete(m.entries, entry.tenant.ID)
			evicted = append(evicted, entry)
		}
		elem = prev
	}
	return evicted
}

func (m *Manager) release(entry *poolEntry) {
	m.mu.Lock()
	entry.refs--
	entry.lastUsed = m.now()
	evicted := m.evictLocked(nil)
	openHandles.Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.closeAll(evicted, "lru")
}

func (m *Manager) closeAll(entries []*poolEntry, reason string) {
	for _, entry := range entries {
		evictionsTotal.WithLabelValues(reason).Inc()
		if err := entry.handle.Close(context.Background()); err != nil {
			m.logger.Warn("failed to close tenant store", "tenant", entry.tenant.Slug, "reason", reason, "error", err)
			continue
		}
		m.logger.Info("tenant store closed", "tenant", entry.tenant.Slug, "reason", reason)
	}
}

// SweepIdle closes unleased handles idle for at least IdleTTL and returns
// how many were closed.
func (m *Manager) SweepIdle() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var idle []*poolEntry
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*poolEntry)
		if entry.refs == 0 && !entry.lastUsed.After(cutoff) {
			m.order.Remove(elem)
			delete(m.entries, entry.tenant.ID)
			idle = append(idle, entry)
		}
		elem = prev
	}
	openHandles.Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.closeAll(idle, "idle")
	return len(idle)
}

// Start schedules the idle sweep.
func (m *Manager) Start() error {
	if m.opts.IdleTTL <= 0 {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating tenant sweep scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(m.opts.SweepInterval),
		gocron.NewTask(func() {
			if n := m.SweepIdle(); n > 0 {
				m.logger.Info("idle tenant stores closed", "count", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("scheduling tenant sweep: %w", err)
	}
	sched.Start()
	m.scheduler = sched
	return nil
}

// Shutdown stops the sweep and closes every cached handle, leased or not.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.scheduler != nil {
		if err := m.scheduler.Shutdown(); err != nil {
			m.logger.Warn("tenant sweep scheduler shutdown failed", "error", err)
		}
	}

	m.mu.Lock()
	all := make([]*poolEntry, 0, len(m.entries))
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		all = append(all, elem.Value.(*poolEntry))
	}
	m.entries = make(map[string]*list.Element)
	m.order.Init()
	openHandles.Set(0)
	m.mu.Unlock()

	var errs []error
	for _, entry := range all {
		if err := entry.handle.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing tenant %s: %w", entry.tenant.Slug, err))
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of cached handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Lease pins a tenant handle until Release.
type Lease struct {
	manager *Manager
	entry   *poolEntry
	once    sync.Once
}

func (l *Lease) Tenant() *models.Tenant { return l.entry.tenant }

func (l *Lease) Repos() *repositories.Set { return l.entry.handle.Repos() }

// Release is idempotent.
func (l *Lease) Release() {
	l.once.Do(func() { l.manager.release(l.entry) })
}
