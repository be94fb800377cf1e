package kv

import (
	"context"
	"sync"
	"time"

	"guildwarden/internal/utils"
)

const sweepEvery = 1024

type memoryValue struct {
	data    []byte
	expires time.Time
}

type memoryWindow struct {
	size   time.Duration
	window *utils.SlidingWindow
}

// Memory is a process-local Store. Counts are not shared between instances.
type Memory struct {
	mu      sync.Mutex
	clock   Clock
	values  map[string]memoryValue
	windows map[string]*memoryWindow
	ops     int
}

func NewMemory() *Memory {
	return &Memory{
		clock:   realClock{},
		values:  make(map[string]memoryValue),
		windows: make(map[string]*memoryWindow),
	}
}

func (m *Memory) WithClock(clock Clock) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.maybeSweepLocked(now)

	entry := m.windows[key]
	if entry == nil || entry.size != window {
		entry = &memoryWindow{size: window, window: utils.NewSlidingWindow(window)}
		m.windows[key] = entry
	}
	return entry.window.Add(now), nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.liveLocked(key, m.clock.Now())
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value.data...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.maybeSweepLocked(now)
	m.values[key] = m.newValue(value, ttl, now)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if _, ok := m.liveLocked(key, now); ok {
		return false, nil
	}
	m.values[key] = m.newValue(value, ttl, now)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.windows, key)
	return nil
}

func (m *Memory) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.liveLocked(key, m.clock.Now())
	if !ok {
		return nil, false, nil
	}
	delete(m.values, key)
	return value.data, true, nil
}

func (m *Memory) newValue(value []byte, ttl time.Duration, now time.Time) memoryValue {
	item := memoryValue{data: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = now.Add(ttl)
	}
	return item
}

func (m *Memory) liveLocked(key string, now time.Time) (memoryValue, bool) {
	value, ok := m.values[key]
	if !ok {
		return memoryValue{}, false
	}
	if !value.expires.IsZero() && !now.Before(value.expires) {
		delete(m.values, key)
		return memoryValue{}, false
	}
	return value, true
}

func (m *Memory) maybeSweepLocked(now time.Time) {
	m.ops++
	if m.ops%sweepEvery != 0 {
		return
	}
	for key, value := range m.values {
		if !value.expires.IsZero() && !now.Before(value.expires) {
			delete(m.values, key)
		}
	}
	for key, entry := range m.windows {
		if entry.window.Count(now) == 0 {
			delete(m.windows, key)
		}
	}
}
