package component

import (
	"context"
	"testing"
	"time"
)

// mockClient is a test implementation of the Client interface.
type mockClient struct {
	name    string
	healthy bool
	closed  bool
}

func (m *mockClient) Name() string {
	return m.name
}

func (m *mockClient) Ping(ctx context.Context) error {
	if !m.healthy {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

var _ Client = (*mockClient)(nil)

func TestManagerRegisterAndGet(t *testing.T) {
	mgr := NewManager()

	if err := mgr.Register("cache", &mockClient{name: "cache", healthy: true}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := mgr.Register("cache", &mockClient{name: "cache"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	client, err := mgr.Get("cache")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if client.Name() != "cache" {
		t.Errorf("expected name 'cache', got %s", client.Name())
	}

	if _, err := mgr.Get("missing"); err == nil {
		t.Error("expected error for unknown client")
	}

	if !mgr.Has("cache") || mgr.Has("missing") {
		t.Error("Has reported wrong registry state")
	}
}

func TestManagerHealthCheck(t *testing.T) {
	mgr := NewManager()
	mgr.MustRegister("good", &mockClient{name: "good", healthy: true})
	mgr.MustRegister("bad", &mockClient{name: "bad", healthy: false})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	statuses := mgr.HealthCheckAll(ctx)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses["good"].Healthy {
		t.Error("expected 'good' to be healthy")
	}
	if statuses["bad"].Healthy {
		t.Error("expected 'bad' to be unhealthy")
	}

	if mgr.AllHealthy(ctx) {
		t.Error("expected AllHealthy to be false with one failing client")
	}
}

func TestManagerCloseAll(t *testing.T) {
	mgr := NewManager()
	a := &mockClient{name: "a", healthy: true}
	b := &mockClient{name: "b", healthy: true}
	mgr.MustRegister("a", a)
	mgr.MustRegister("b", b)

	if err := mgr.CloseAll(); err != nil {
		t.Fatalf("close all failed: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected all clients to be closed")
	}
	if len(mgr.List()) != 0 {
		t.Error("expected empty registry after CloseAll")
	}
}
