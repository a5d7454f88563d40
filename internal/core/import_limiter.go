package core

// import_limiter.go bounds how many validate and commit operations run at
// once. Callers wait up to maxWait for a slot and then get
// ErrTooManyImports. WaitForDrain lets shutdown wait for in-flight imports.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when no import slot frees up in time.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

const (
	DefaultMaxConcurrentImports = 5
	DefaultMaxWaitTime          = 30 * time.Second
)

// Operation names the kind of work holding a slot.
type Operation string

const (
	OpValidate Operation = "validate"
	OpCommit   Operation = "commit"
)

// ImportLimiter is a counting semaphore with per-operation accounting.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active map[Operation]int
	total  int
	idle   chan struct{} // closed while total == 0
}

func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)

	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		active:    make(map[Operation]int),
		idle:      idle,
	}
}

// Acquire takes a slot for op. The caller must Release(op) exactly once
// after a nil return.
func (l *ImportLimiter) Acquire(ctx context.Context, op Operation) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.track(op, 1)
		return nil
	case <-timer.C:
		return ErrTooManyImports
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (l *ImportLimiter) Release(op Operation) {
	l.track(op, -1)
	<-l.semaphore
}

func (l *ImportLimiter) track(op Operation, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total == 0 && delta > 0 {
		l.idle = make(chan struct{})
	}
	l.active[op] += delta
	l.total += delta
	if l.total == 0 {
		close(l.idle)
	}
}

// WaitForDrain blocks until no import holds a slot or ctx ends.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		idle, total := l.idle, l.total
		l.mu.Unlock()
		if total == 0 {
			return nil
		}

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        map[Operation]int `json:"active"`
	Available     int               `json:"available"`
	MaxConcurrent int               `json:"max_concurrent"`
}

func (l *ImportLimiter) Status() LimiterStatus {
	l.mu.Lock()
	active := make(map[Operation]int, len(l.active))
	for op, n := range l.active {
		if n > 0 {
			active[op] = n
		}
	}
	total := l.total
	l.mu.Unlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - total,
		MaxConcurrent: cap(l.semaphore),
	}
}
