package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding window limiter. State is per process, so
// it only fits single-node deployments and tests.
type Memory struct {
	mu            sync.Mutex
	entries       map[string]*memoryEntry
	max           int
	window        time.Duration
	now           func() time.Time
	opCount       int
	cleanupEveryN int
}

type memoryEntry struct {
	hits       []time.Time
	lastSeenAt time.Time
}

// NewMemory allows max hits per id within window.
func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{
		entries:       make(map[string]*memoryEntry),
		max:           max,
		window:        window,
		now:           time.Now,
		cleanupEveryN: 64,
	}
}

func (m *Memory) Get(ctx context.Context, id string) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		entry = &memoryEntry{}
		m.entries[id] = entry
	}
	entry.hits = pruneBefore(entry.hits, now.Add(-m.window))
	count := len(entry.hits)
	entry.hits = append(entry.hits, now)
	entry.lastSeenAt = now
	m.maybeCleanupLocked(now)

	return Ticket{
		Total:     m.max,
		Remaining: remaining(m.max, count),
		Reset:     entry.hits[0].Add(m.window),
	}, nil
}

func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (m *Memory) maybeCleanupLocked(now time.Time) {
	m.opCount++
	if m.opCount%m.cleanupEveryN != 0 {
		return
	}
	for key, entry := range m.entries {
		if now.Sub(entry.lastSeenAt) > m.window {
			delete(m.entries, key)
		}
	}
}
