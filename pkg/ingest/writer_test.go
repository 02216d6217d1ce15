package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickray/healthlake/pkg/blob/memory"
)

func TestWriter_WritesNewlineDelimitedJSON(t *testing.T) {
	store := memory.New()
	writer := NewWriter(store)
	writer.now = func() time.Time {
		return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	}

	key, err := writer.WriteMetrics(context.Background(), []Record{
		{"name": "heart_rate", "units": "bpm", "qty": 62.0},
		{"name": "heart_rate", "units": "bpm", "qty": 71.0},
	})
	require.NoError(t, err)
	require.Equal(t, "syncs/2024-01-02T15:04:05.000000.json", key)

	obj, err := store.Get(context.Background(), key)
	require.NoError(t, err)

	lines := bytes.Split(obj.Body, []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &record))
		require.Equal(t, "heart_rate", record["name"])
	}
}

func TestWriter_WorkoutsLandUnderWorkoutPrefix(t *testing.T) {
	store := memory.New()
	writer := NewWriter(store)

	key, err := writer.WriteWorkouts(context.Background(), []Record{
		{"name": "Outdoor Run", "start": "2024-01-02 07:00:00 -0500"},
	})
	require.NoError(t, err)

	keys, err := store.List(context.Background(), WorkoutPrefix)
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)
}
