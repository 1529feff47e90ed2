package coordination

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/packflow/packflow/internal/event"
)

// Claim records one held lock.
type Claim struct {
	Owner      string
	Key        string
	AcquiredAt time.Time
}

// Memory is an in-process lock table. It maintains a map of key to owner
// and optionally publishes lock traffic to an event bus for observability.
// All methods are safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	claims map[string]Claim
	bus    *event.Bus
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithBus publishes lock acquire/release events to the given bus.
func WithBus(bus *event.Bus) MemoryOption {
	return func(m *Memory) {
		m.bus = bus
	}
}

// NewMemory creates an empty in-process backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{claims: make(map[string]Claim)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire atomically claims a key. Re-claiming a held key is idempotent
// for the same owner.
func (m *Memory) Acquire(owner, key string) error {
	m.mu.Lock()
	err := m.acquireLocked(owner, key)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(event.NewLockAcquiredEvent(owner, key))
	}
	return nil
}

func (m *Memory) acquireLocked(owner, key string) error {
	if existing, ok := m.claims[key]; ok {
		if existing.Owner == owner {
			return nil // idempotent
		}
		return fmt.Errorf("%w: %s holds %s", ErrAlreadyHeld, existing.Owner, key)
	}
	m.claims[key] = Claim{Owner: owner, Key: key, AcquiredAt: time.Now()}
	return nil
}

// AcquireAll claims keys in order, rolling back the batch on failure.
func (m *Memory) AcquireAll(owner string, keys []string) error {
	m.mu.Lock()

	var acquired []string
	for _, key := range keys {
		if err := m.acquireLocked(owner, key); err != nil {
			for _, k := range acquired {
				delete(m.claims, k)
			}
			m.mu.Unlock()
			return err
		}
		acquired = append(acquired, key)
	}
	m.mu.Unlock()

	if m.bus != nil {
		for _, key := range acquired {
			m.bus.Publish(event.NewLockAcquiredEvent(owner, key))
		}
	}
	return nil
}

// Release relinquishes one key.
func (m *Memory) Release(owner, key string) error {
	m.mu.Lock()
	err := m.releaseLocked(owner, key)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(event.NewLockReleasedEvent(owner, key))
	}
	return nil
}

func (m *Memory) releaseLocked(owner, key string) error {
	existing, ok := m.claims[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	if existing.Owner != owner {
		return fmt.Errorf("%w: %s holds %s", ErrNotOwner, existing.Owner, key)
	}
	delete(m.claims, key)
	return nil
}

// ReleaseAll relinquishes every key the owner holds, in sorted order.
func (m *Memory) ReleaseAll(owner string) error {
	m.mu.Lock()
	var keys []string
	for key, claim := range m.claims {
		if claim.Owner == owner {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		delete(m.claims, key)
	}
	m.mu.Unlock()

	if m.bus != nil {
		for _, key := range keys {
			m.bus.Publish(event.NewLockReleasedEvent(owner, key))
		}
	}
	return nil
}

// Holder returns the owner of a key, or ("", false) if unheld.
func (m *Memory) Holder(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	claim, ok := m.claims[key]
	if !ok {
		return "", false
	}
	return claim.Owner, true
}

// OwnerKeys returns the sorted keys held by an owner.
func (m *Memory) OwnerKeys(owner string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, claim := range m.claims {
		if claim.Owner == owner {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Pause publishes the feature's pause sentinel.
func (m *Memory) Pause(featureID, owner string) error {
	return m.Acquire(owner, pauseKey(featureID))
}

// Resume clears the feature's pause sentinel; clearing an inactive pause
// is a no-op.
func (m *Memory) Resume(featureID string) error {
	key := pauseKey(featureID)

	m.mu.Lock()
	claim, ok := m.claims[key]
	if ok {
		delete(m.claims, key)
	}
	m.mu.Unlock()

	if ok && m.bus != nil {
		m.bus.Publish(event.NewLockReleasedEvent(claim.Owner, key))
	}
	return nil
}

// PauseActive reports whether the feature's pause sentinel is held.
func (m *Memory) PauseActive(featureID string) bool {
	_, held := m.Holder(pauseKey(featureID))
	return held
}
