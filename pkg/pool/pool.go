// Package pool provides typed worker pools backed by ants. Each pool type
// carries a capacity profile tuned for its workload; a lazily initialized
// global registry hands out the shared instances.
package pool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type identifies a shared worker pool.
type Type string

const (
	// DefaultPool serves miscellaneous short tasks.
	DefaultPool Type = "default"
	// IngestPool fans out per-file ingestion work.
	IngestPool Type = "ingest"
	// BackgroundPool runs deferred work such as async cache writes.
	BackgroundPool Type = "background"
)

// Pool errors.
var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrPoolOverload = errors.New("worker pool is overloaded")
	ErrPoolNotFound = errors.New("worker pool not found")
)

// Config defines the configuration for one worker pool.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker is kept.
	ExpiryDuration time.Duration
	// PreAlloc preallocates worker queues.
	PreAlloc bool
	// Nonblocking makes Submit fail with ErrPoolOverload instead of waiting.
	Nonblocking bool
	// MaxBlockingTasks caps queued submitters when Nonblocking is false.
	MaxBlockingTasks int
	// PanicHandler receives recovered worker panics.
	PanicHandler func(interface{})
}

// DefaultPoolConfig returns the default pool profile.
func DefaultPoolConfig() *Config {
	return &Config{
		Capacity:       256,
		ExpiryDuration: 10 * time.Second,
	}
}

// IngestPoolConfig returns the ingestion pool profile. Ingestion is
// I/O-plus-embedding bound, so a modest worker count keeps the embedding
// backend from being flooded.
func IngestPoolConfig() *Config {
	return &Config{
		Capacity:         8,
		ExpiryDuration:   60 * time.Second,
		MaxBlockingTasks: 0,
	}
}

// BackgroundPoolConfig returns the background pool profile.
func BackgroundPoolConfig() *Config {
	return &Config{
		Capacity:         50,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      true,
		MaxBlockingTasks: 100,
	}
}

// Pool wraps an ants pool with submission statistics.
type Pool struct {
	name   string
	pool   *ants.Pool
	config *Config

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64

	closed atomic.Bool
}

// Stats is an atomic snapshot of pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Rejected  int64
	Panics    int64
	Running   int
	Capacity  int
	Waiting   int
}

// New creates a worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}

	p := &Pool{
		name:   name,
		config: config,
	}

	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}
	handler := config.PanicHandler
	if handler == nil {
		handler = func(r interface{}) {
			logger.Errorw("worker panic recovered", "pool", name, "panic", r)
		}
	}
	opts = append(opts, ants.WithPanicHandler(func(r interface{}) {
		p.panics.Add(1)
		handler(r)
	}))

	inner, err := ants.NewPool(config.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("create worker pool %q: %w", name, err)
	}
	p.pool = inner

	logger.Debugw("worker pool created", "name", name, "capacity", config.Capacity)
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Submit schedules task on the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.failed.Add(1)
				panic(r) // let the ants panic handler log it
			}
			p.completed.Add(1)
		}()
		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.rejected.Add(1)
			return ErrPoolOverload
		}
		p.failed.Add(1)
		return err
	}

	p.submitted.Add(1)
	return nil
}

// Release shuts the pool down without waiting for queued work.
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
}

// ReleaseTimeout shuts the pool down, waiting up to timeout for workers.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
		Running:   p.pool.Running(),
		Capacity:  p.pool.Cap(),
		Waiting:   p.pool.Waiting(),
	}
}
