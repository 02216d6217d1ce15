package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nickray/healthlake/pkg/blob"
)

// Key prefixes for raw sync batches. Downstream tooling depends on this
// layout; see the external table definitions.
const (
	SyncPrefix    = "syncs/"
	WorkoutPrefix = "workouts/"
)

// Writer persists flattened records as newline-delimited JSON batches.
// Each batch lands at a new timestamp-derived key; existing objects are
// never overwritten.
type Writer struct {
	store blob.Store
	now   func() time.Time
}

// NewWriter creates a Writer appending to store.
func NewWriter(store blob.Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// WriteMetrics stores metric records under syncs/. Returns the object key.
func (w *Writer) WriteMetrics(ctx context.Context, records []Record) (string, error) {
	return w.write(ctx, SyncPrefix, records)
}

// WriteWorkouts stores workout records under workouts/. Returns the object key.
func (w *Writer) WriteWorkouts(ctx context.Context, records []Record) (string, error) {
	return w.write(ctx, WorkoutPrefix, records)
}

func (w *Writer) write(ctx context.Context, prefix string, records []Record) (string, error) {
	key := prefix + w.now().UTC().Format("2006-01-02T15:04:05.000000") + ".json"

	// One JSON object per line, no enclosing array: the query engine's
	// row format for external tables.
	var buf bytes.Buffer
	for i, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return "", fmt.Errorf("failed to encode record: %w", err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}

	if err := w.store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to store batch %q: %w", key, err)
	}
	return key, nil
}
