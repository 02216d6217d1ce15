package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func metricPayload(metrics ...Metric) SyncPayload {
	var payload SyncPayload
	payload.Data.Metrics = metrics
	return payload
}

func TestTransform_FlattensEveryPoint(t *testing.T) {
	payload := metricPayload(
		Metric{
			Name:  "heart_rate",
			Units: "bpm",
			Data: []map[string]interface{}{
				{"date": "2024-01-02 08:00:00 -0500", "qty": 62.0},
				{"date": "2024-01-02 09:00:00 -0500", "qty": 71.0},
			},
		},
		Metric{
			Name:  "step_count",
			Units: "count",
			Data: []map[string]interface{}{
				{"date": "2024-01-02 08:00:00 -0500", "qty": 512.0},
			},
		},
	)

	metrics, workouts, err := Transform(payload)
	require.NoError(t, err)
	require.Empty(t, workouts)
	require.Len(t, metrics, 3)

	// Metric order, then point order within the metric.
	require.Equal(t, "heart_rate", metrics[0]["name"])
	require.Equal(t, "bpm", metrics[0]["units"])
	require.Equal(t, 62.0, metrics[0]["qty"])
	require.Equal(t, "heart_rate", metrics[1]["name"])
	require.Equal(t, "step_count", metrics[2]["name"])
	require.Equal(t, "count", metrics[2]["units"])
}

func TestTransform_MissingNameIsFatal(t *testing.T) {
	payload := metricPayload(
		Metric{Name: "heart_rate", Units: "bpm"},
		Metric{Units: "count", Data: []map[string]interface{}{{"qty": 1.0}}},
	)

	_, _, err := Transform(payload)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTransform_MissingUnitsIsFatal(t *testing.T) {
	payload := metricPayload(
		Metric{Name: "heart_rate", Data: []map[string]interface{}{{"qty": 1.0}}},
	)

	_, _, err := Transform(payload)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTransform_ExplodesNestedWorkoutFields(t *testing.T) {
	var payload SyncPayload
	payload.Data.Workouts = []map[string]interface{}{
		{
			"name":  "Outdoor Run",
			"start": "2024-01-02 07:00:00 -0500",
			"heartRate": map[string]interface{}{
				"avg": 151.0,
				"max": 176.0,
			},
		},
	}

	_, workouts, err := Transform(payload)
	require.NoError(t, err)
	require.Len(t, workouts, 1)

	workout := workouts[0]
	require.Equal(t, "Outdoor Run", workout["name"])
	require.Equal(t, 151.0, workout["heartRate_avg"])
	require.Equal(t, 176.0, workout["heartRate_max"])
	require.NotContains(t, workout, "heartRate")
}

func TestTransform_NonMappingWorkoutFieldsPassThrough(t *testing.T) {
	var payload SyncPayload
	payload.Data.Workouts = []map[string]interface{}{
		{
			"name":  "Outdoor Walk",
			"route": []interface{}{map[string]interface{}{"lat": 40.7, "lon": -74.0}},
		},
	}

	_, workouts, err := Transform(payload)
	require.NoError(t, err)
	require.Len(t, workouts, 1)

	// Lists are not mappings; they pass through for the engine to handle.
	require.Contains(t, workouts[0], "route")
}

func TestTransform_EmptyPayload(t *testing.T) {
	metrics, workouts, err := Transform(SyncPayload{})
	require.NoError(t, err)
	require.Empty(t, metrics)
	require.Empty(t, workouts)
}
