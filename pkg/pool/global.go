package pool

import (
	"sync"
	"time"
)

var (
	globalMu    sync.Mutex
	globalPools map[Type]*Pool
)

func ensureGlobal() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPools != nil {
		return nil
	}

	configs := map[Type]*Config{
		DefaultPool:    DefaultPoolConfig(),
		IngestPool:     IngestPoolConfig(),
		BackgroundPool: BackgroundPoolConfig(),
	}

	pools := make(map[Type]*Pool, len(configs))
	for typ, cfg := range configs {
		p, err := New(string(typ), cfg)
		if err != nil {
			for _, created := range pools {
				created.Release()
			}
			return err
		}
		pools[typ] = p
	}

	globalPools = pools
	return nil
}

// GetByType returns the shared pool of the given type, initializing the
// global registry on first use.
func GetByType(typ Type) (*Pool, error) {
	if err := ensureGlobal(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	p, ok := globalPools[typ]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// SubmitToType schedules task on the shared pool of the given type.
func SubmitToType(typ Type, task func()) error {
	p, err := GetByType(typ)
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// CloseAll releases every shared pool, waiting up to timeout for in-flight
// work. Safe to call when the registry was never initialized.
func CloseAll(timeout time.Duration) error {
	globalMu.Lock()
	pools := globalPools
	globalPools = nil
	globalMu.Unlock()

	var first error
	for _, p := range pools {
		if err := p.ReleaseTimeout(timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}
