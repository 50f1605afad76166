// ABOUTME: In-memory chart backend that records allocations and releases.
// ABOUTME: Used by embedders without a drawing surface and by tests that count live handles.
package report

import (
	"errors"
	"sync"
)

// ErrAlreadyDestroyed is returned when a chart is destroyed twice.
var ErrAlreadyDestroyed = errors.New("chart already destroyed")

// MemoryBackend keeps every chart it creates so callers can count live handles.
type MemoryBackend struct {
	mu      sync.Mutex
	created int
	live    map[*MemoryChart]struct{}
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{live: make(map[*MemoryChart]struct{})}
}

var _ Backend = (*MemoryBackend)(nil)

// NewChart records a new live chart.
func (b *MemoryBackend) NewChart(spec ChartSpec) (Chart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &MemoryChart{spec: spec, backend: b}
	b.live[c] = struct{}{}
	b.created++
	return c, nil
}

// Live returns the charts not yet destroyed.
func (b *MemoryBackend) Live() []ChartSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChartSpec, 0, len(b.live))
	for c := range b.live {
		out = append(out, c.spec)
	}
	return out
}

// Created returns how many charts were ever allocated.
func (b *MemoryBackend) Created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

// MemoryChart is a chart handle from MemoryBackend.
type MemoryChart struct {
	spec      ChartSpec
	backend   *MemoryBackend
	destroyed bool
}

func (c *MemoryChart) Spec() ChartSpec { return c.spec }

func (c *MemoryChart) Destroy() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.destroyed {
		return ErrAlreadyDestroyed
	}
	c.destroyed = true
	delete(c.backend.live, c)
	return nil
}
