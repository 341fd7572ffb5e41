package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePartitionCreatesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory()
	mgr := NewManager(svc, nil)

	require.NoError(t, mgr.EnsurePartition(ctx, "2025_12_09"))

	rows, err := svc.ReadRange(ctx, "2025_12_09", "A:E")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Header, rows[0])

	// Second call is a no-op.
	require.NoError(t, mgr.EnsurePartition(ctx, "2025_12_09"))
	rows, err = svc.ReadRange(ctx, "2025_12_09", "A:E")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEnsurePartitionSwallowsCreateRace(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory()
	mgr := NewManager(svc, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.EnsurePartition(ctx, "2025_12_09")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	names, err := svc.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025_12_09"}, names)

	rows, err := svc.ReadRange(ctx, "2025_12_09", "A:E")
	require.NoError(t, err)
	headers := 0
	for _, row := range rows {
		if len(row) > 0 && row[0] == Header[0] {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory()
	mgr := NewManager(svc, nil)

	require.NoError(t, mgr.EnsurePartition(ctx, "2025_12_09"))
	require.NoError(t, mgr.AppendRow(ctx, "2025_12_09", []string{"Juan", "22-0001", "11", "A", "2025-12-09 08:01:00"}))
	require.NoError(t, mgr.AppendRow(ctx, "2025_12_09", []string{"Maria", "22-0002", "11", "A", "2025-12-09 08:02:00"}))

	rows, err := mgr.ReadAll(ctx, "2025_12_09")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Juan", rows[1][0])
	assert.Equal(t, "Maria", rows[2][0])
}

func TestReadAllAbsentPartition(t *testing.T) {
	mgr := NewManager(NewMemory(), nil)
	_, err := mgr.ReadAll(context.Background(), "2099_01_01")
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestAppendToAbsentPartitionFails(t *testing.T) {
	mgr := NewManager(NewMemory(), nil)
	err := mgr.AppendRow(context.Background(), "2099_01_01", []string{"x"})
	assert.Error(t, err)
}
