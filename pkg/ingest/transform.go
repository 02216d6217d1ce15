package ingest

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload indicates a sync payload missing required fields.
// Nothing is written when flattening fails; the exporter re-syncs the batch.
var ErrMalformedPayload = errors.New("malformed sync payload")

// Record is one flattened health observation, field name to value.
type Record map[string]interface{}

// Metric is one metric series in a sync payload: a name/units header plus
// timestamped data points.
type Metric struct {
	Name  string                   `json:"name"`
	Units string                   `json:"units"`
	Data  []map[string]interface{} `json:"data"`
}

// SyncPayload is the request body posted by the health export app.
type SyncPayload struct {
	Data struct {
		Metrics  []Metric                 `json:"metrics"`
		Workouts []map[string]interface{} `json:"workouts"`
	} `json:"data"`
}

// Transform flattens a sync payload into metric and workout records ready
// for append-only storage. The nesting of the export format is collapsed so
// every record is a flat row the query engine can index.
func Transform(payload SyncPayload) (metrics, workouts []Record, err error) {
	for i, metric := range payload.Data.Metrics {
		if metric.Name == "" || metric.Units == "" {
			return nil, nil, fmt.Errorf("%w: metric %d missing name or units", ErrMalformedPayload, i)
		}
		for _, point := range metric.Data {
			record := make(Record, len(point)+2)
			for key, value := range point {
				record[key] = value
			}
			record["name"] = metric.Name
			record["units"] = metric.Units
			metrics = append(metrics, record)
		}
	}

	for _, workout := range payload.Data.Workouts {
		workouts = append(workouts, flattenWorkout(workout))
	}

	return metrics, workouts, nil
}

// flattenWorkout explodes one level of nested mappings into
// parentKey_childKey fields. The export format nests exactly one level
// (e.g. heart rate min/avg/max under a single key); deeper structures such
// as route point lists pass through unchanged.
func flattenWorkout(workout map[string]interface{}) Record {
	record := make(Record, len(workout))
	for key, value := range workout {
		if child, ok := value.(map[string]interface{}); ok {
			for childKey, childValue := range child {
				record[key+"_"+childKey] = childValue
			}
			continue
		}
		record[key] = value
	}
	return record
}
