package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/docstore"
	"memberportal/internal/ledger"
	"memberportal/internal/session"
	"memberportal/internal/token"
	"memberportal/internal/whitelist"
)

func staffClaims(subject string, role token.Role) *token.Claims {
	return &token.Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

type fixture struct {
	svc      *ledger.Memory
	docs     *docstore.Memory
	recorder *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := ledger.NewMemory()
	docs := docstore.NewMemory()
	wl := whitelist.NewStore(docs)
	require.NoError(t, wl.UpsertMany(context.Background(), []whitelist.Entry{
		{IdentityID: "22-0001", DisplayName: "Juan Dela Cruz"},
		{IdentityID: "22-0002", DisplayName: "Maria Clara"},
	}))

	rec := NewRecorder(ledger.NewManager(svc, nil), docs, wl, time.UTC, nil)
	rec.WithClock(func() time.Time {
		return time.Date(2025, 12, 9, 8, 15, 0, 0, time.UTC)
	})
	return &fixture{svc: svc, docs: docs, recorder: rec}
}

func TestRecordAuthorization(t *testing.T) {
	f := newFixture(t)
	in := Input{IdentityID: "22-0001", YearLevel: "11", Section: "A"}

	_, err := f.recorder.Record(context.Background(), nil, in)
	assert.ErrorIs(t, err, session.ErrUnauthorized)

	_, err = f.recorder.Record(context.Background(), staffClaims("u1", token.RoleUser), in)
	assert.ErrorIs(t, err, session.ErrForbidden)

	_, err = f.recorder.Record(context.Background(), staffClaims("m1", token.RoleModerator), in)
	assert.NoError(t, err)

	_, err = f.recorder.Record(context.Background(), staffClaims("a1", token.RoleAdmin), in)
	assert.NoError(t, err)
}

func TestRecordAppendsAndReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.recorder.Record(ctx, staffClaims("m1", token.RoleModerator), Input{
		IdentityID: "22-0001", YearLevel: "11", Section: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025_12_09", rec.PartitionKey)
	assert.Equal(t, "Juan Dela Cruz", rec.Name) // whitelist name wins

	f.recorder.Wait()

	rows, err := f.svc.ReadRange(ctx, "2025_12_09", "A:E")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ledger.Header, rows[0])
	assert.Equal(t, []string{"Juan Dela Cruz", "22-0001", "11", "A", "2025-12-09 08:15:00"}, rows[1])

	agg, err := f.recorder.Summary(ctx, staffClaims("m1", token.RoleModerator), "2025_12_09")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Count)
	assert.False(t, agg.LastUpdated.IsZero())
}

func TestRecordRejectsUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.recorder.Record(context.Background(), staffClaims("m1", token.RoleModerator), Input{
		IdentityID: "99-9999",
	})
	assert.ErrorIs(t, err, whitelist.ErrNotFound)

	// Nothing was provisioned or appended.
	names, err := f.svc.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConcurrentRecordsProvisionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.recorder.Record(ctx, staffClaims("m1", token.RoleModerator), Input{
				IdentityID: "22-0001", YearLevel: "11", Section: "A",
			})
		}(i)
	}
	wg.Wait()
	f.recorder.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}

	rows, err := f.svc.ReadRange(ctx, "2025_12_09", "A:E")
	require.NoError(t, err)
	headers := 0
	for _, row := range rows {
		if len(row) > 0 && row[0] == ledger.Header[0] {
			headers++
		}
	}
	assert.Equal(t, 1, headers, "exactly one header row")
	assert.Len(t, rows, callers+1, "no appends lost")

	agg, err := f.recorder.Summary(ctx, staffClaims("a1", token.RoleAdmin), "2025_12_09")
	require.NoError(t, err)
	assert.Equal(t, int64(callers), agg.Count)
}

func TestDuplicateCheckinsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	claims := staffClaims("m1", token.RoleModerator)
	in := Input{IdentityID: "22-0001", YearLevel: "11", Section: "A"}

	_, err := f.recorder.Record(ctx, claims, in)
	require.NoError(t, err)
	_, err = f.recorder.Record(ctx, claims, in)
	require.NoError(t, err)
	f.recorder.Wait()

	records, err := f.recorder.List(ctx, claims, "2025_12_09")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestListMapsRowsPositionally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	claims := staffClaims("m1", token.RoleModerator)

	_, err := f.recorder.Record(ctx, claims, Input{IdentityID: "22-0001", YearLevel: "11", Section: "A"})
	require.NoError(t, err)
	_, err = f.recorder.Record(ctx, claims, Input{IdentityID: "22-0002", YearLevel: "12", Section: "B"})
	require.NoError(t, err)
	f.recorder.Wait()

	records, err := f.recorder.List(ctx, claims, "2025_12_09")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2025_12_09_1", records[0].ID)
	assert.Equal(t, "Juan Dela Cruz", records[0].Name)
	assert.Equal(t, "22-0001", records[0].IdentityID)
	assert.Equal(t, "11", records[0].YearLevel)
	assert.Equal(t, "A", records[0].Section)
	assert.Equal(t, time.Date(2025, 12, 9, 8, 15, 0, 0, time.UTC), records[0].Timestamp)

	assert.Equal(t, "2025_12_09_2", records[1].ID)
	assert.Equal(t, "22-0002", records[1].IdentityID)
}

func TestListAbsentPartitionIsEmpty(t *testing.T) {
	f := newFixture(t)
	records, err := f.recorder.List(context.Background(), staffClaims("m1", token.RoleModerator), "2099_01_01")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListAuthorization(t *testing.T) {
	f := newFixture(t)
	_, err := f.recorder.List(context.Background(), staffClaims("u1", token.RoleUser), "2025_12_09")
	assert.ErrorIs(t, err, session.ErrForbidden)
	_, err = f.recorder.List(context.Background(), nil, "2025_12_09")
	assert.ErrorIs(t, err, session.ErrUnauthorized)
}

func TestSummaryAbsentPartition(t *testing.T) {
	f := newFixture(t)
	agg, err := f.recorder.Summary(context.Background(), staffClaims("a1", token.RoleAdmin), "2099_01_01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Count)
	assert.Equal(t, "2099_01_01", agg.PartitionKey)
}

func TestRecountCorrectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	claims := staffClaims("m1", token.RoleModerator)

	for i := 0; i < 3; i++ {
		_, err := f.recorder.Record(ctx, claims, Input{IdentityID: "22-0001", YearLevel: "11", Section: "A"})
		require.NoError(t, err)
	}
	f.recorder.Wait()

	// Simulate drift left behind by a failed reconcile.
	_, err := f.docs.IncrField(ctx, AggregateCollection, "2025_12_09", "count", -2)
	require.NoError(t, err)

	agg, err := f.recorder.Recount(ctx, "2025_12_09")
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)

	agg, err = f.recorder.Summary(ctx, claims, "2025_12_09")
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)
}

func TestRecordHonorsExplicitDate(t *testing.T) {
	f := newFixture(t)
	rec, err := f.recorder.Record(context.Background(), staffClaims("m1", token.RoleModerator), Input{
		IdentityID: "22-0001",
		Date:       time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "2025_12_01", rec.PartitionKey)
}
