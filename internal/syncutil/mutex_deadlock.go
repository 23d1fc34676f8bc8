//go:build deadlock

// Package syncutil provides the mutex used by the session and transport layers.
// Building with -tags=deadlock swaps in lock-order and timeout detection.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex.
type Mutex struct {
	deadlock.Mutex
}
