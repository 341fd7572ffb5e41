package ledger

import (
	"context"
	"fmt"
	"sync"
)

type memPartition struct {
	header    []string
	hasHeader bool
	rows      [][]string
}

// Memory implements Service in-process for dev and testing. Row 1 is the
// header slot and appends land below it, so a header written after a
// racing append never clobbers data, mirroring how the real service
// treats the fixed header range.
type Memory struct {
	mu         sync.Mutex
	partitions map[string]*memPartition
	order      []string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{partitions: make(map[string]*memPartition)}
}

// Partitions lists partition names in creation order.
func (m *Memory) Partitions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// CreatePartition creates a named partition. Creating an existing
// partition fails, like the real service does when two provisioners race.
func (m *Memory) CreatePartition(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.partitions[name]; ok {
		return fmt.Errorf("ledger: partition %q already exists", name)
	}
	m.partitions[name] = &memPartition{}
	m.order = append(m.order, name)
	return nil
}

// WriteRow writes values at a 1-based row index encoded as the range.
// Row 1 is the header slot; higher indexes address data rows.
func (m *Memory) WriteRow(ctx context.Context, partition, rng string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return ErrPartitionNotFound
	}
	var idx int
	if _, err := fmt.Sscanf(rng, "%d", &idx); err != nil || idx < 1 {
		return fmt.Errorf("ledger: bad range %q", rng)
	}
	if idx == 1 {
		p.header = append([]string(nil), values...)
		p.hasHeader = true
		return nil
	}
	for len(p.rows) < idx-1 {
		p.rows = append(p.rows, nil)
	}
	p.rows[idx-2] = append([]string(nil), values...)
	return nil
}

// AppendRow appends values after the last data row.
func (m *Memory) AppendRow(ctx context.Context, partition string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return ErrPartitionNotFound
	}
	p.rows = append(p.rows, append([]string(nil), values...))
	return nil
}

// ReadRange returns all rows of the partition, header first; the range
// is ignored.
func (m *Memory) ReadRange(ctx context.Context, partition, rng string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil, ErrPartitionNotFound
	}
	out := make([][]string, 0, len(p.rows)+1)
	if p.hasHeader {
		out = append(out, append([]string(nil), p.header...))
	}
	for _, r := range p.rows {
		out = append(out, append([]string(nil), r...))
	}
	return out, nil
}
