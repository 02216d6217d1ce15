package rollup

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nickray/healthlake/pkg/blob"
	"github.com/nickray/healthlake/pkg/config"
	"github.com/nickray/healthlake/pkg/engine"
)

// ErrQueryFailed indicates the query engine reached a terminal non-success
// state, or produced no result objects. Fatal to the generation attempt.
var ErrQueryFailed = errors.New("query execution failed")

// resultSuffix marks the engine's own tabular output among the objects
// under a scope's prefix.
const resultSuffix = ".csv"

// Generator builds a scope's rollup: it drives the query engine to
// completion, parses the tabular output, reshapes it, and persists the JSON
// artifact at the scope's canonical results key.
type Generator struct {
	store    blob.Store
	engine   engine.Engine
	database string
	bucket   string

	// pollInterval is the fixed backoff between completion polls.
	// Tests shrink it; the caller's context bounds the total wait.
	pollInterval time.Duration
}

// NewGenerator creates a Generator writing through store and querying via eng.
func NewGenerator(store blob.Store, eng engine.Engine, database, bucket string) *Generator {
	return &Generator{
		store:        store,
		engine:       eng,
		database:     database,
		bucket:       bucket,
		pollInterval: config.PollInterval,
	}
}

// SetPollInterval overrides the completion poll backoff. Tests shrink it so
// polling loops resolve quickly.
func (g *Generator) SetPollInterval(d time.Duration) {
	g.pollInterval = d
}

// Generate runs the scope's query and returns the reshaped rollup JSON,
// having stored it at the scope's results key. Errors are terminal; nothing
// is retried and no partial artifact is written.
func (g *Generator) Generate(ctx context.Context, scope Scope) ([]byte, error) {
	query := scope.Query()
	output := "s3://" + g.bucket + "/" + scope.Prefix()

	id, err := g.engine.Submit(ctx, query, g.database, output)
	if err != nil {
		return nil, fmt.Errorf("failed to submit query for %s: %w", scope, err)
	}
	log.Printf("Generating %s rollup (execution %s)", scope, id)

	if err := g.await(ctx, id); err != nil {
		return nil, err
	}

	rows, err := g.locateResults(ctx, scope)
	if err != nil {
		return nil, err
	}

	reshaped, err := scope.Reshape(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to reshape %s rollup: %w", scope, err)
	}

	body, err := json.Marshal(reshaped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s rollup: %w", scope, err)
	}

	if err := g.store.Put(ctx, scope.ResultsKey(), body); err != nil {
		return nil, fmt.Errorf("failed to store %s rollup: %w", scope, err)
	}
	return body, nil
}

// await polls the execution until it succeeds. Any other terminal state is
// fatal; ctx carries the only deadline.
func (g *Generator) await(ctx context.Context, executionID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.pollInterval):
		}

		state, err := g.engine.Poll(ctx, executionID)
		if err != nil {
			return fmt.Errorf("failed to poll execution %s: %w", executionID, err)
		}
		switch {
		case state == engine.StateSucceeded:
			return nil
		case state.Terminal():
			return fmt.Errorf("%w: execution %s finished %s", ErrQueryFailed, executionID, state)
		}
	}
}

// locateResults finds the engine's tabular output under the scope's prefix
// and parses it into rows.
func (g *Generator) locateResults(ctx context.Context, scope Scope) ([]Row, error) {
	keys, err := g.store.List(ctx, scope.Prefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s output: %w", scope, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no objects produced for %s", ErrQueryFailed, scope)
	}

	for _, key := range keys {
		if !strings.HasSuffix(key, resultSuffix) {
			continue
		}
		obj, err := g.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read results %q: %w", key, err)
		}
		return parseRows(obj.Body)
	}
	return nil, fmt.Errorf("%w: no tabular results for %s", ErrQueryFailed, scope)
}

// parseRows reads CSV with a header line into column-keyed rows.
func parseRows(body []byte) ([]Row, error) {
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
