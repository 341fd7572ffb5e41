package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Header is the fixed first row written into every new partition.
var Header = []string{"Name", "ID Number", "Year Level", "Section", "Time"}

// Manager provisions day partitions lazily and appends rows to them.
type Manager struct {
	svc Service
	log *zap.Logger
}

// NewManager builds a manager over a ledger service.
func NewManager(svc Service, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{svc: svc, log: log}
}

// EnsurePartition makes sure the named partition exists with its header
// row. The check-then-create is unlocked: two concurrent callers may both
// see the partition absent and both try to create it. The loser's create
// fails (or overwrites an identical header), and either way the partition
// converges to the same state, so a create failure here is re-checked
// against the partition list and swallowed when the partition exists.
func (m *Manager) EnsurePartition(ctx context.Context, key string) error {
	names, err := m.svc.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if name == key {
			return nil
		}
	}

	if err := m.svc.CreatePartition(ctx, key); err != nil {
		names, lerr := m.svc.Partitions(ctx)
		if lerr == nil {
			for _, name := range names {
				if name == key {
					m.log.Debug("partition created concurrently", zap.String("partition", key))
					return nil
				}
			}
		}
		return fmt.Errorf("create partition %s: %w", key, err)
	}

	if err := m.svc.WriteRow(ctx, key, "1", Header); err != nil {
		return fmt.Errorf("write header for %s: %w", key, err)
	}
	return nil
}

// AppendRow appends one row to the partition. Callers ensure the
// partition exists first within the same logical operation.
func (m *Manager) AppendRow(ctx context.Context, key string, values []string) error {
	if err := m.svc.AppendRow(ctx, key, values); err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

// ReadAll returns every row of the partition, ErrPartitionNotFound when
// it does not exist.
func (m *Manager) ReadAll(ctx context.Context, key string) ([][]string, error) {
	return m.svc.ReadRange(ctx, key, "A:E")
}
