package errors

import (
	"fmt"
	"sync"
)

// The registry keeps every defined code so duplicates fail fast at
// package init and the response layer can resolve codes it only has
// as integers.
var (
	registryMu sync.RWMutex
	registry   = make(map[int]*Errno)
)

// Register records an Errno under its code. Codes are assigned once;
// a duplicate is a programming error and panics during init.
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if prev, ok := registry[e.Code]; ok {
		panic(fmt.Sprintf("error code %d already registered: %s", e.Code, prev.MessageEN))
	}
	registry[e.Code] = e
	return e
}

// Lookup returns the Errno registered under code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}
