//go:build !deadlock

// Package syncutil provides the mutex used by the session and transport layers.
// Building with -tags=deadlock swaps in lock-order and timeout detection.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}
