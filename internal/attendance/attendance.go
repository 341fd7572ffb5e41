package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"memberportal/internal/docstore"
	"memberportal/internal/ledger"
	"memberportal/internal/metrics"
	"memberportal/internal/session"
	"memberportal/internal/token"
	"memberportal/internal/whitelist"
)

// AggregateCollection holds the per-day check-in counters, keyed by
// partition key.
const AggregateCollection = "attendance_summary"

const (
	partitionKeyLayout = "2006_01_02"
	rowTimeLayout      = "2006-01-02 15:04:05"
)

// Record is one check-in event as read back from the ledger.
type Record struct {
	ID           string    `json:"id"`
	PartitionKey string    `json:"partition_key"`
	Name         string    `json:"name"`
	IdentityID   string    `json:"identity_id"`
	YearLevel    string    `json:"year_level"`
	Section      string    `json:"section"`
	Timestamp    time.Time `json:"timestamp"`
}

// Input is a check-in request. Date selects the partition; zero means
// today in the portal time zone. Name is advisory; the whitelist entry
// wins.
type Input struct {
	IdentityID string
	Name       string
	YearLevel  string
	Section    string
	Date       time.Time
}

// Aggregate is the derived per-day counter. It mirrors the ledger row
// count but is advisory, never authoritative.
type Aggregate struct {
	PartitionKey string    `json:"partition_key"`
	Count        int64     `json:"count"`
	LastUpdated  time.Time `json:"last_updated,omitempty"`
}

// Recorder orchestrates check-ins: authorize, validate against the
// whitelist, provision the day partition, append the row, and reconcile
// the aggregate counter.
type Recorder struct {
	mgr  *ledger.Manager
	docs docstore.Store
	wl   *whitelist.Store
	log  *zap.Logger
	loc  *time.Location
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewRecorder builds a recorder. loc is the portal's fixed time zone used
// to derive "today".
func NewRecorder(mgr *ledger.Manager, docs docstore.Store, wl *whitelist.Store, loc *time.Location, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{mgr: mgr, docs: docs, wl: wl, log: log, loc: loc, now: time.Now}
}

// WithClock overrides the recorder clock; tests only.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// PartitionKey formats the partition name for a calendar date in the
// portal time zone.
func (r *Recorder) PartitionKey(t time.Time) string {
	return t.In(r.loc).Format(partitionKeyLayout)
}

// Record runs one check-in. The append is the durability boundary: once
// the ledger row is written the event is recorded, and the aggregate
// reconcile runs concurrently without gating the result.
func (r *Recorder) Record(ctx context.Context, claims *token.Claims, in Input) (Record, error) {
	if err := session.Authorize(claims, token.RoleAdmin, token.RoleModerator); err != nil {
		return Record{}, err
	}

	if in.IdentityID == "" {
		return Record{}, errors.New("attendance: identity id required")
	}
	when := r.now().In(r.loc)
	date := in.Date
	if date.IsZero() {
		date = when
	}
	key := r.PartitionKey(date)

	entry, err := r.wl.Lookup(ctx, in.IdentityID)
	if err != nil {
		return Record{}, err
	}
	name := entry.DisplayName
	if name == "" {
		name = in.Name
	}

	if err := r.mgr.EnsurePartition(ctx, key); err != nil {
		return Record{}, err
	}

	rec := Record{
		PartitionKey: key,
		Name:         name,
		IdentityID:   in.IdentityID,
		YearLevel:    in.YearLevel,
		Section:      in.Section,
		Timestamp:    when,
	}

	// The reconcile touches an independent backend and nothing downstream
	// reads its result, so it is dispatched alongside the append rather
	// than after it.
	r.wg.Add(1)
	go r.reconcile(key)

	start := time.Now()
	row := []string{rec.Name, rec.IdentityID, rec.YearLevel, rec.Section, rec.Timestamp.Format(rowTimeLayout)}
	if err := r.mgr.AppendRow(ctx, key, row); err != nil {
		return Record{}, err
	}
	metrics.ObserveLedgerAppend(time.Since(start))
	metrics.CheckinsRecorded.Inc()
	return rec, nil
}

// reconcile bumps the aggregate counter for the partition. Failures are
// logged and counted, never surfaced: the ledger row is the canonical
// record and already succeeded or will fail on its own terms.
func (r *Recorder) reconcile(key string) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("aggregate reconcile panicked", zap.String("partition", key), zap.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.docs.IncrField(ctx, AggregateCollection, key, "count", 1); err != nil {
		metrics.ReconcileFailures.Inc()
		r.log.Warn("aggregate increment failed", zap.String("partition", key), zap.Error(err))
		return
	}
	stamp := docstore.Doc{"last_updated": r.now().UTC().Format(time.RFC3339)}
	if err := r.docs.SetFields(ctx, AggregateCollection, key, stamp); err != nil {
		metrics.ReconcileFailures.Inc()
		r.log.Warn("aggregate stamp failed", zap.String("partition", key), zap.Error(err))
	}
}

// Wait blocks until in-flight reconciles finish. cmd/api drains on
// shutdown; tests await the counter.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// List returns the records of a partition, oldest first. An absent
// partition reads as an empty day, not an error. The header row is
// skipped and each data row gets a synthetic id of partition key and
// 1-based row index.
func (r *Recorder) List(ctx context.Context, claims *token.Claims, key string) ([]Record, error) {
	if err := session.Authorize(claims, token.RoleAdmin, token.RoleModerator); err != nil {
		return nil, err
	}

	rows, err := r.mgr.ReadAll(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrPartitionNotFound) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}

	records := make([]Record, 0, len(rows))
	idx := 0
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		idx++
		rec := Record{
			ID:           fmt.Sprintf("%s_%d", key, idx),
			PartitionKey: key,
		}
		if len(row) > 0 {
			rec.Name = row[0]
		}
		if len(row) > 1 {
			rec.IdentityID = row[1]
		}
		if len(row) > 2 {
			rec.YearLevel = row[2]
		}
		if len(row) > 3 {
			rec.Section = row[3]
		}
		if len(row) > 4 {
			if ts, err := time.ParseInLocation(rowTimeLayout, row[4], r.loc); err == nil {
				rec.Timestamp = ts
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Summary returns the aggregate counter for a partition; zero values when
// no check-in has been counted yet.
func (r *Recorder) Summary(ctx context.Context, claims *token.Claims, key string) (Aggregate, error) {
	if err := session.Authorize(claims, token.RoleAdmin, token.RoleModerator); err != nil {
		return Aggregate{}, err
	}

	doc, err := r.docs.Get(ctx, AggregateCollection, key)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Aggregate{PartitionKey: key}, nil
		}
		return Aggregate{}, fmt.Errorf("read aggregate %s: %w", key, err)
	}
	agg := Aggregate{PartitionKey: key}
	agg.Count, _ = strconv.ParseInt(doc["count"], 10, 64)
	agg.LastUpdated, _ = time.Parse(time.RFC3339, doc["last_updated"])
	return agg, nil
}

// Recount rebuilds the aggregate for a partition from the ledger rows,
// correcting drift left by failed reconciles. Used by the operator tool.
func (r *Recorder) Recount(ctx context.Context, key string) (Aggregate, error) {
	rows, err := r.mgr.ReadAll(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrPartitionNotFound) {
			return Aggregate{PartitionKey: key}, nil
		}
		return Aggregate{}, fmt.Errorf("read partition %s: %w", key, err)
	}
	count := int64(len(rows))
	if count > 0 {
		count-- // header
	}
	agg := Aggregate{PartitionKey: key, Count: count, LastUpdated: r.now().UTC()}
	err = r.docs.Set(ctx, AggregateCollection, key, docstore.Doc{
		"count":        strconv.FormatInt(agg.Count, 10),
		"last_updated": agg.LastUpdated.Format(time.RFC3339),
	})
	if err != nil {
		return Aggregate{}, fmt.Errorf("write aggregate %s: %w", key, err)
	}
	return agg, nil
}
