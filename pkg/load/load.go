// Package load defines the case data source consumed by stages.
package load

import (
	"context"
	"strconv"
	"sync"
)

// Row is one case of input data.
type Row struct {
	// ID is stable across rounds (e.g. the data row number)
	ID string

	// Data is bound as the case namespace
	Data map[string]interface{}
}

// Loader yields case rows in pages.
//
// Load returns at most n rows; it returns fewer only when the source is
// exhausted. Reset rewinds to the first row for the next round. A loader
// whose backing store is unavailable must return an error rather than block.
type Loader interface {
	Load(ctx context.Context, n int) ([]Row, error)
	Reset(ctx context.Context) error
}

// Memory is a Loader over an in-memory slice. It counts calls, which makes
// it convenient for embedding and tests.
type Memory struct {
	mu     sync.Mutex
	rows   []Row
	pos    int
	loads  int
	resets int
}

// NewMemory creates a loader over data; row ids are 1-based positions.
func NewMemory(data []map[string]interface{}) *Memory {
	rows := make([]Row, len(data))
	for i, d := range data {
		rows[i] = Row{ID: strconv.Itoa(i + 1), Data: d}
	}
	return &Memory{rows: rows}
}

// Load implements Loader.
func (m *Memory) Load(ctx context.Context, n int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads++
	end := m.pos + n
	if end > len(m.rows) {
		end = len(m.rows)
	}
	out := make([]Row, end-m.pos)
	copy(out, m.rows[m.pos:end])
	m.pos = end
	return out, nil
}

// Reset implements Loader.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = 0
	m.resets++
	return nil
}

// Loads returns the number of Load calls so far.
func (m *Memory) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Resets returns the number of Reset calls so far.
func (m *Memory) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
