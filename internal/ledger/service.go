package ledger

import (
	"context"
	"errors"
)

// ErrPartitionNotFound is the distinguished absence status for reads of a
// partition that does not exist. It is never folded into generic failures;
// callers translate it (an absent attendance partition reads as empty).
var ErrPartitionNotFound = errors.New("ledger: partition not found")

// Service is the contract of the external tabular ledger. Partitions are
// named tabs; rows are positional string values.
type Service interface {
	Partitions(ctx context.Context) ([]string, error)
	CreatePartition(ctx context.Context, name string) error
	// WriteRow writes values at an explicit range within the partition.
	WriteRow(ctx context.Context, partition, rng string, values []string) error
	// AppendRow appends values after the last occupied row.
	AppendRow(ctx context.Context, partition string, values []string) error
	// ReadRange returns the rows in the range, ErrPartitionNotFound when
	// the partition is absent.
	ReadRange(ctx context.Context, partition, rng string) ([][]string, error)
}
