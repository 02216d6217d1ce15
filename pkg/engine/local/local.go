// Package local is a self-contained query execution backend. It evaluates the
// fixed rollup query shapes directly against the newline-delimited JSON sync
// batches in the blob store and writes CSV result files, so the server runs
// end to end without an external analytics service.
package local

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nickray/healthlake/pkg/blob"
	"github.com/nickray/healthlake/pkg/engine"
)

var (
	tableRe = regexp.MustCompile(`(?i)\bFROM\s+(\w+)`)
	tsRe    = regexp.MustCompile(`'(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})'`)
	monthRe = regexp.MustCompile(`substr\(date, 1, 7\) = '(\d{4}-\d{2})'`)
)

// tables maps query table names to the object key prefix holding their rows
// and the row field carrying the observation timestamp.
var tables = map[string]struct {
	prefix    string
	timeField string
}{
	"history":  {prefix: "syncs/", timeField: "date"},
	"workouts": {prefix: "workouts/", timeField: "start"},
}

type execution struct {
	state  engine.State
	reason string
}

// Engine executes queries against NDJSON batches in a blob store.
type Engine struct {
	store blob.Store

	mu         sync.RWMutex
	executions map[string]*execution
}

// New creates a local query engine reading from store.
func New(store blob.Store) *Engine {
	return &Engine{
		store:      store,
		executions: make(map[string]*execution),
	}
}

// Submit starts executing query in the background and returns its execution id.
// The database argument is accepted for interface compatibility and ignored;
// the local engine has a single implicit database.
func (e *Engine) Submit(ctx context.Context, query, database, outputLocation string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	e.mu.Lock()
	e.executions[id] = &execution{state: engine.StateRunning}
	e.mu.Unlock()

	go e.run(id, query, outputLocation)
	return id, nil
}

// Poll returns the current state of the execution.
func (e *Engine) Poll(ctx context.Context, executionID string) (engine.State, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown execution id %q", executionID)
	}
	return exec.state, nil
}

func (e *Engine) run(id, query, outputLocation string) {
	// Detached from the submitter's context: once submitted, an execution
	// runs to a terminal state on its own, like a remote engine would.
	ctx := context.Background()

	result, err := e.execute(ctx, query)
	if err != nil {
		log.Printf("Query execution %s failed: %v", id, err)
		e.finish(id, engine.StateFailed, err.Error())
		return
	}

	key := stripLocation(outputLocation) + "/" + id + ".csv"
	if err := e.store.Put(ctx, key, result); err != nil {
		log.Printf("Query execution %s failed writing results: %v", id, err)
		e.finish(id, engine.StateFailed, err.Error())
		return
	}

	e.finish(id, engine.StateSucceeded, "")
}

func (e *Engine) finish(id string, state engine.State, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[id]; ok {
		exec.state = state
		exec.reason = reason
	}
}

// execute evaluates the query and renders the matching rows as CSV.
func (e *Engine) execute(ctx context.Context, query string) ([]byte, error) {
	m := tableRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("no table in query")
	}
	table, ok := tables[strings.ToLower(m[1])]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", m[1])
	}

	rows, err := e.loadRows(ctx, table.prefix)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.Contains(query, "count("):
		return renderCSV([]map[string]string{summarize(rows)}), nil

	case monthRe.MatchString(query):
		month := monthRe.FindStringSubmatch(query)[1]
		rows = filterRows(rows, table.timeField, func(ts string) bool {
			return strings.HasPrefix(ts, month)
		})

	default:
		bounds := tsRe.FindAllStringSubmatch(query, -1)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("no timestamp range in query")
		}
		lo, hi := bounds[0][1], bounds[1][1]
		rows = filterRows(rows, table.timeField, func(ts string) bool {
			return ts >= lo && ts <= hi
		})
	}

	return renderCSV(flattenRows(rows)), nil
}

// loadRows reads every NDJSON batch under prefix, in key order.
func (e *Engine) loadRows(ctx context.Context, prefix string) ([]map[string]interface{}, error) {
	keys, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	for _, key := range keys {
		obj, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read batch %q: %w", key, err)
		}
		for _, line := range bytes.Split(obj.Body, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var row map[string]interface{}
			if err := json.Unmarshal(line, &row); err != nil {
				return nil, fmt.Errorf("malformed row in %q: %w", key, err)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// filterRows keeps rows whose timestamp field matches. Health export
// timestamps look like "2024-01-02 08:30:00 -0500"; the leading 19
// characters compare lexically as a local wall-clock instant.
func filterRows(rows []map[string]interface{}, field string, match func(string) bool) []map[string]interface{} {
	var out []map[string]interface{}
	for _, row := range rows {
		ts, _ := row[field].(string)
		if len(ts) > 19 {
			ts = ts[:19]
		}
		if ts != "" && match(ts) {
			out = append(out, row)
		}
	}
	return out
}

// summarize computes the single global aggregate row.
func summarize(rows []map[string]interface{}) map[string]string {
	names := make(map[string]bool)
	var first, last string
	for _, row := range rows {
		if name, _ := row["name"].(string); name != "" {
			names[name] = true
		}
		if ts, _ := row["date"].(string); ts != "" {
			if first == "" || ts < first {
				first = ts
			}
			if ts > last {
				last = ts
			}
		}
	}
	return map[string]string{
		"total_points":  strconv.Itoa(len(rows)),
		"total_metrics": strconv.Itoa(len(names)),
		"first_date":    first,
		"last_date":     last,
	}
}

// flattenRows converts decoded JSON rows to string cells. Scalar values
// become their text form; structured values (workout routes) are serialized
// and placed under a "<field>_json" column, matching how the external table
// exposes nested data.
func flattenRows(rows []map[string]interface{}) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		flat := make(map[string]string, len(row))
		for key, value := range row {
			switch v := value.(type) {
			case nil:
				flat[key] = ""
			case string:
				flat[key] = v
			case bool:
				flat[key] = strconv.FormatBool(v)
			case float64:
				flat[key] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				encoded, err := json.Marshal(v)
				if err != nil {
					continue
				}
				flat[key+"_json"] = string(encoded)
			}
		}
		out = append(out, flat)
	}
	return out
}

// renderCSV writes rows as CSV with a header of the sorted union of columns.
func renderCSV(rows []map[string]string) []byte {
	columns := make(map[string]bool)
	for _, row := range rows {
		for key := range row {
			columns[key] = true
		}
	}
	header := make([]string, 0, len(columns))
	for key := range columns {
		header = append(header, key)
	}
	sort.Strings(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(header) > 0 {
		w.Write(header)
		for _, row := range rows {
			record := make([]string, len(header))
			for i, key := range header {
				record[i] = row[key]
			}
			w.Write(record)
		}
	}
	w.Flush()
	return buf.Bytes()
}

// stripLocation reduces an "s3://bucket/prefix" style output location to the
// bare key prefix. Bare prefixes pass through unchanged.
func stripLocation(location string) string {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return strings.TrimSuffix(location, "/")
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		return strings.TrimSuffix(rest[i+1:], "/")
	}
	return ""
}
