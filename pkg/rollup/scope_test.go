package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScope_Keys(t *testing.T) {
	require.Equal(t, "summaries/2024-01-02/results.json", Day("2024-01-02").ResultsKey())
	require.Equal(t, "workout-summaries/2024-01-02/results.json", DayWorkouts("2024-01-02").ResultsKey())
	require.Equal(t, "monthly-summaries/2024-01/results.json", Month("2024-01").ResultsKey())
	require.Equal(t, "global-metrics/results.json", Global().ResultsKey())
}

func TestScope_QueryEmbedsPeriod(t *testing.T) {
	require.Contains(t, Day("2024-01-02").Query(), "'2024-01-02 00:00:00'")
	require.Contains(t, Day("2024-01-02").Query(), "'2024-01-02 23:59:59'")
	require.Contains(t, DayWorkouts("2024-01-02").Query(), "FROM workouts")
	require.Contains(t, Month("2024-01").Query(), "'2024-01'")
	require.Contains(t, Global().Query(), "count(")
}

func TestScope_PeriodEnd(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	end, ok := Day("2024-01-02").PeriodEnd(loc)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, 0, loc), end)

	end, ok = Month("2024-02").PeriodEnd(loc)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, loc), end)

	_, ok = Global().PeriodEnd(loc)
	require.False(t, ok)
}

func TestReshapeDetail_LastRowWins(t *testing.T) {
	rows := []Row{
		{"name": "heart_rate", "date": "2024-01-02 08:00:00", "qty": "62", "units": "bpm"},
		{"name": "step_count", "date": "2024-01-02 08:00:00", "qty": "512", "units": "count", "source": ""},
		{"name": "heart_rate", "date": "2024-01-02 09:00:00", "qty": "71", "units": "bpm"},
	}

	result, err := Day("2024-01-02").Reshape(rows)
	require.NoError(t, err)

	detail, ok := result.(map[string]map[string]string)
	require.True(t, ok)
	require.Len(t, detail, 2)

	// Duplicate name keeps only the later row's fields.
	require.Equal(t, map[string]string{"qty": "71", "units": "bpm"}, detail["heart_rate"])

	// Empty values and the name/date columns are dropped.
	require.Equal(t, map[string]string{"qty": "512", "units": "count"}, detail["step_count"])
}

func TestReshapeWorkouts_KeepsEveryRow(t *testing.T) {
	rows := []Row{
		{"name": "Outdoor Run", "start": "2024-01-02 07:00:00", "duration": "1800"},
		{"name": "Outdoor Walk", "start": "2024-01-02 18:00:00", "route_json": `[{"lat":40.7,"lon":-74}]`},
	}

	result, err := DayWorkouts("2024-01-02").Reshape(rows)
	require.NoError(t, err)

	workouts, ok := result.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, workouts, 2)

	require.Equal(t, "Outdoor Run", workouts[0]["name"])
	require.NotContains(t, workouts[1], "route_json")

	route, ok := workouts[1]["route"].([]interface{})
	require.True(t, ok)
	require.Len(t, route, 1)
}

func TestReshapeWorkouts_BadRouteJSON(t *testing.T) {
	rows := []Row{
		{"name": "Outdoor Walk", "route_json": "{broken"},
	}

	_, err := DayWorkouts("2024-01-02").Reshape(rows)
	require.Error(t, err)
}

func TestReshapeMonth_GroupsByDay(t *testing.T) {
	rows := []Row{
		{"name": "heart_rate", "date": "2024-01-02 08:00:00 -0500", "qty": "62"},
		{"name": "step_count", "date": "2024-01-02 08:00:00 -0500", "qty": "512"},
		{"name": "heart_rate", "date": "2024-01-03 08:00:00 -0500", "qty": "64"},
	}

	result, err := Month("2024-01").Reshape(rows)
	require.NoError(t, err)

	summary, ok := result.(map[string]map[string]map[string]string)
	require.True(t, ok)
	require.Len(t, summary, 2)

	require.Len(t, summary["2024-01-02"], 2)
	require.Equal(t, map[string]string{"qty": "62"}, summary["2024-01-02"]["heart_rate"])
	require.Equal(t, map[string]string{"qty": "64"}, summary["2024-01-03"]["heart_rate"])
}

func TestReshapeGlobal_KeepsLastRow(t *testing.T) {
	rows := []Row{
		{"total_points": "100"},
		{"total_points": "200", "total_metrics": "12"},
	}

	result, err := Global().Reshape(rows)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"total_points": "200", "total_metrics": "12"}, result)
}

func TestReshapeGlobal_NoRows(t *testing.T) {
	result, err := Global().Reshape(nil)
	require.NoError(t, err)
	require.Equal(t, map[string]string{}, result)
}
