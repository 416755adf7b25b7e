// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
)

var (
	// ErrNotFound is returned when no live context has the view id.
	ErrNotFound = errors.New("mirror context not found")

	// ErrInvalidViewID is returned for view ids without a type prefix.
	ErrInvalidViewID = errors.New("invalid view id")

	// ErrNotReady is returned when a new context does not signal readiness
	// within the ready timeout.
	ErrNotReady = errors.New("mirror context did not become ready")

	// ErrExited is returned when a new context's Serve returns before it
	// signals readiness.
	ErrExited = errors.New("mirror context exited before ready")
)

// ViewID names a mirror context as type_name.
type ViewID string

// Key is the typed registry key behind a ViewID.
type Key struct {
	Type string
	Name string
}

// ViewID renders the key.
func (k Key) ViewID() ViewID {
	return ViewID(k.Type + "_" + k.Name)
}

// ParseViewID splits id at its first underscore. Types never contain one;
// names may.
func ParseViewID(id ViewID) (Key, error) {
	typ, name, ok := strings.Cut(string(id), "_")
	if !ok || typ == "" || name == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidViewID, id)
	}
	return Key{Type: typ, Name: name}, nil
}

// Spec describes a context to create.
type Spec struct {
	Key Key
	URL string
}

// Context is an isolated execution context. Serve runs until ctx is
// cancelled; Ready closes once the context can accept messages.
type Context interface {
	suture.Service
	Ready() <-chan struct{}
}

// Factory builds contexts for the pool.
type Factory interface {
	New(spec Spec) (Context, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(spec Spec) (Context, error)

// New calls f.
func (f FactoryFunc) New(spec Spec) (Context, error) {
	return f(spec)
}

// Status summarises pool occupancy.
type Status struct {
	Running bool     `json:"running"`
	Count   int      `json:"count"`
	IDs     []ViewID `json:"ids"`
}

// PoolOptions tune a Pool.
type PoolOptions struct {
	// ReadyTimeout bounds how long Create waits for Ready.
	ReadyTimeout time.Duration
	// StopTimeout bounds how long Stop waits for Serve to return.
	StopTimeout time.Duration
	// Spec configures the pool's own supervisor.
	Spec suture.Spec
}

// runner records the first return of a context's Serve so Create can stop
// waiting for a context that will never become ready.
type runner struct {
	Context
	exited chan struct{}
	once   sync.Once
	err    error
}

func newRunner(c Context) *runner {
	return &runner{Context: c, exited: make(chan struct{})}
}

func (r *runner) Serve(ctx context.Context) error {
	err := r.Context.Serve(ctx)
	r.once.Do(func() {
		r.err = err
		close(r.exited)
	})
	return err
}

func (r *runner) String() string {
	if s, ok := r.Context.(fmt.Stringer); ok {
		return s.String()
	}
	return "mirror-context"
}

// exitErr wraps the error Serve returned, if any.
func (r *runner) exitErr() error {
	if r.err == nil {
		return ErrExited
	}
	return fmt.Errorf("%w: %w", ErrExited, r.err)
}

type entry struct {
	spec      Spec
	ctx       Context
	token     suture.ServiceToken
	createdAt time.Time
}

// Pool keeps at most one live context per Key. Contexts run as services of
// the pool's own supervisor, so a panicking context is restarted without
// affecting its siblings. Pool itself is a suture.Service and must be
// served for contexts to run.
type Pool struct {
	sup     *suture.Supervisor
	factory Factory
	opts    PoolOptions

	mu      sync.RWMutex
	entries map[Key]*entry

	opMu  sync.Mutex
	opLks map[Key]*sync.Mutex

	hookMu    sync.RWMutex
	onDestroy []func(ViewID)
}

// NewPool creates an empty pool.
func NewPool(factory Factory, opts PoolOptions) *Pool {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &Pool{
		sup:     suture.New("mirror-pool", opts.Spec),
		factory: factory,
		opts:    opts,
		entries: make(map[Key]*entry),
		opLks:   make(map[Key]*sync.Mutex),
	}
}

// Serve runs the pool supervisor.
func (p *Pool) Serve(ctx context.Context) error {
	return p.sup.Serve(ctx)
}

func (p *Pool) String() string {
	return "mirror-pool"
}

// OnDestroy registers fn to run after a context leaves the registry and
// before it is torn down.
func (p *Pool) OnDestroy(fn func(ViewID)) {
	p.hookMu.Lock()
	p.onDestroy = append(p.onDestroy, fn)
	p.hookMu.Unlock()
}

// lockKey serializes create/stop per key.
func (p *Pool) lockKey(k Key) func() {
	p.opMu.Lock()
	l, ok := p.opLks[k]
	if !ok {
		l = &sync.Mutex{}
		p.opLks[k] = l
	}
	p.opMu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create starts a context named name of type typ. An existing context with
// the same key is torn down first. If the factory fails or the new context
// never becomes ready, nothing is registered.
func (p *Pool) Create(ctx context.Context, name, typ, url string) (ViewID, error) {
	key := Key{Type: typ, Name: name}
	if typ == "" || name == "" || strings.Contains(typ, "_") {
		return "", fmt.Errorf("%w: type %q name %q", ErrInvalidViewID, typ, name)
	}
	id := key.ViewID()
	log := logging.With().Str("component", "mirror").Str("view_id", string(id)).Logger()

	unlock := p.lockKey(key)
	defer unlock()

	operation := "create"
	if p.lookup(key) != nil {
		operation = "replace"
		log.Info().Msg("Mirror context already exists, destroying before re-create")
		if err := p.destroy(key); err != nil {
			log.Warn().Err(err).Msg("Previous mirror context did not stop cleanly")
		}
	}

	spec := Spec{Key: key, URL: url}
	mctx, err := p.factory.New(spec)
	if err != nil {
		metrics.RecordMirrorOperation(operation, err)
		return "", fmt.Errorf("create mirror context %s: %w", id, err)
	}

	run := newRunner(mctx)
	token := p.sup.Add(run)

	timer := time.NewTimer(p.opts.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-mctx.Ready():
	case <-run.exited:
		select {
		case <-mctx.Ready():
		default:
			err = run.exitErr()
		}
	case <-timer.C:
		err = ErrNotReady
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if rerr := p.sup.RemoveAndWait(token, p.opts.StopTimeout); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to remove unready mirror context")
		}
		metrics.RecordMirrorOperation(operation, err)
		return "", fmt.Errorf("start mirror context %s: %w", id, err)
	}

	p.mu.Lock()
	p.entries[key] = &entry{spec: spec, ctx: mctx, token: token, createdAt: time.Now()}
	count := len(p.entries)
	p.mu.Unlock()

	metrics.MirrorContextsActive.Set(float64(count))
	metrics.RecordMirrorOperation(operation, nil)
	log.Info().Int("count", count).Msg("Mirror context created")
	return id, nil
}

// Stop tears down one context.
func (p *Pool) Stop(id ViewID) error {
	key, err := ParseViewID(id)
	if err != nil {
		return err
	}
	unlock := p.lockKey(key)
	defer unlock()

	if p.lookup(key) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err = p.destroy(key)
	metrics.RecordMirrorOperation("stop", err)
	return err
}

// StopAll stops the given contexts, or every context when ids is empty,
// concurrently. The result has one entry per requested id.
func (p *Pool) StopAll(ids ...ViewID) map[ViewID]error {
	if len(ids) == 0 {
		ids = p.Status().IDs
	}

	results := make(map[ViewID]error, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			err := p.Stop(id)
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Status reports occupancy. IDs are sorted.
func (p *Pool) Status() Status {
	p.mu.RLock()
	ids := make([]ViewID, 0, len(p.entries))
	for k := range p.entries {
		ids = append(ids, k.ViewID())
	}
	p.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Status{Running: len(ids) > 0, Count: len(ids), IDs: ids}
}

// IsInUse reports whether a live context has the view id.
func (p *Pool) IsInUse(id ViewID) bool {
	key, err := ParseViewID(id)
	if err != nil {
		return false
	}
	return p.lookup(key) != nil
}

func (p *Pool) lookup(k Key) *entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[k]
}

// destroy removes the registry entry first, runs the destroy hooks and then
// stops the service. Caller holds the key lock.
func (p *Pool) destroy(k Key) error {
	p.mu.Lock()
	e, ok := p.entries[k]
	delete(p.entries, k)
	count := len(p.entries)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.MirrorContextsActive.Set(float64(count))

	id := k.ViewID()
	p.hookMu.RLock()
	hooks := append([]func(ViewID){}, p.onDestroy...)
	p.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}

	if err := p.sup.RemoveAndWait(e.token, p.opts.StopTimeout); err != nil {
		return fmt.Errorf("stop mirror context %s: %w", id, err)
	}
	logging.Info().Str("component", "mirror").Str("view_id", string(id)).Int("count", count).
		Msg("Mirror context destroyed")
	return nil
}
