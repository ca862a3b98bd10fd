/*
Package lock provides engine.Locker implementations.

PURPOSE:
  A partner double-clicking "Generate" must not produce two batches. The
  generator takes a lock on "generate:{firm}:{period}" for the duration of a
  run; a second run for the same key fails fast with
  engine.ErrGenerationInProgress instead of waiting.

IMPLEMENTATIONS:
  Memory: Single process (CLI, tests, single-instance server)
  Redis:  Across server instances, via bsm/redislock

SEE ALSO:
  - engine/generator.go: Lock acquisition
  - config/config.go: redis section selects the implementation
*/
package lock

import (
	"context"
	"sync"

	"github.com/ledgerly/practice-engine/engine"
)

// Memory is an in-process, non-blocking lock table.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ engine.Locker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// Lock claims key or returns engine.ErrGenerationInProgress if it is held.
// The returned unlock is safe to call more than once.
func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, engine.ErrGenerationInProgress
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
