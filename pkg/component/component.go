// Package component defines the shared contract for backend clients.
//
// Every client in the subpackages (ollama, weaviate, milvus, redis, reranker)
// implements Client, so the server can register them in a Manager for
// centralized health checking and shutdown.
package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/docqa/pkg/pool"
)

// Client is the base interface all backend clients implement.
type Client interface {
	// Name returns the client type identifier (e.g. "ollama", "weaviate").
	Name() string
	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error
	// Close releases the client's resources. Safe to call multiple times.
	Close() error
}

// HealthChecker probes a client and reports an error when unhealthy.
type HealthChecker func() error

// HealthStatus is the result of a single health check.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   error         `json:"-"`
}

// ErrClientNotFound is returned when a named client is not registered.
var ErrClientNotFound = errors.New("component: client not found")

// Manager keeps a registry of named clients and provides centralized
// health checking and lifecycle management. Safe for concurrent use.
//
//	mgr := component.NewManager()
//	mgr.MustRegister("ollama", ollamaClient)
//	mgr.MustRegister("store", weaviateClient)
//	defer mgr.CloseAll()
//
//	statuses := mgr.HealthCheckAll(ctx)
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
	}
}

// Register registers a client under a unique name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" {
		return fmt.Errorf("component: client name cannot be empty")
	}
	if client == nil {
		return fmt.Errorf("component: client cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return fmt.Errorf("component: client %q is already registered", name)
	}

	m.clients[name] = client
	return nil
}

// MustRegister registers a client and panics on failure. For init paths
// where a duplicate registration is a programming error.
func (m *Manager) MustRegister(name string, client Client) {
	if err := m.Register(name, client); err != nil {
		panic(err)
	}
}

// Get retrieves a registered client by name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return client, nil
}

// Has reports whether a client with the given name is registered.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.clients[name]
	return exists
}

// List returns the names of all registered clients.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// HealthCheck probes one client and measures its latency.
func (m *Manager) HealthCheck(ctx context.Context, name string) HealthStatus {
	client, err := m.Get(name)
	if err != nil {
		return HealthStatus{Name: name, Healthy: false, Error: err}
	}

	start := time.Now()
	err = client.Ping(ctx)

	return HealthStatus{
		Name:    name,
		Healthy: err == nil,
		Latency: time.Since(start),
		Error:   err,
	}
}

// HealthCheckAll probes every registered client concurrently. Probes run on
// the background pool, falling back to plain goroutines when it is closed.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(clients))
	var statusMu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range clients {
		wg.Add(1)
		n, c := name, client
		task := func() {
			defer wg.Done()

			start := time.Now()
			err := c.Ping(ctx)

			statusMu.Lock()
			statuses[n] = HealthStatus{
				Name:    n,
				Healthy: err == nil,
				Latency: time.Since(start),
				Error:   err,
			}
			statusMu.Unlock()
		}

		if err := pool.SubmitToType(pool.BackgroundPool, task); err != nil {
			go task()
		}
	}

	wg.Wait()
	return statuses
}

// AllHealthy reports whether every registered client passes its health check.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, status := range m.HealthCheckAll(ctx) {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes every registered client and empties the registry.
// It keeps going after failures and returns the first error.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("component: close %q: %w", name, err)
		}
		delete(m.clients, name)
	}
	return firstErr
}
