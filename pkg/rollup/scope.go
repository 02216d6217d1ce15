package rollup

import (
	"encoding/json"
	"fmt"
	"time"
)

// Row is one parsed tabular result row, column name to cell text.
type Row map[string]string

type kind int

const (
	kindDay kind = iota
	kindDayWorkouts
	kindMonth
	kindGlobal
)

// Scope identifies what a cached rollup covers: a single day's metrics or
// workouts, a calendar month, or the all-time global view. A scope maps
// deterministically to a query template, an output key prefix, and a
// reshape transform.
type Scope struct {
	kind   kind
	period string // YYYY-MM-DD for day scopes, YYYY-MM for month
}

// Day is the metric detail scope for one date (YYYY-MM-DD).
func Day(date string) Scope { return Scope{kind: kindDay, period: date} }

// DayWorkouts is the workout scope for one date (YYYY-MM-DD).
func DayWorkouts(date string) Scope { return Scope{kind: kindDayWorkouts, period: date} }

// Month is the summary scope for one calendar month (YYYY-MM).
func Month(month string) Scope { return Scope{kind: kindMonth, period: month} }

// Global is the all-time metrics scope.
func Global() Scope { return Scope{kind: kindGlobal} }

func (s Scope) String() string {
	switch s.kind {
	case kindDay:
		return "day " + s.period
	case kindDayWorkouts:
		return "day-workouts " + s.period
	case kindMonth:
		return "month " + s.period
	default:
		return "global"
	}
}

// Prefix is the object key prefix holding the scope's query output and
// cached rollup. Other tooling depends on this layout.
func (s Scope) Prefix() string {
	switch s.kind {
	case kindDay:
		return "summaries/" + s.period
	case kindDayWorkouts:
		return "workout-summaries/" + s.period
	case kindMonth:
		return "monthly-summaries/" + s.period
	default:
		return "global-metrics"
	}
}

// ResultsKey is the canonical key of the scope's cached rollup.
func (s Scope) ResultsKey() string {
	return s.Prefix() + "/results.json"
}

// Query builds the scope's analytical query. Period values are internally
// derived dates, never raw request text.
func (s Scope) Query() string {
	switch s.kind {
	case kindDay:
		return fmt.Sprintf(
			"SELECT * FROM history WHERE datetime >= TIMESTAMP '%s 00:00:00' AND datetime <= TIMESTAMP '%s 23:59:59'",
			s.period, s.period)
	case kindDayWorkouts:
		return fmt.Sprintf(
			"SELECT * FROM workouts WHERE start >= TIMESTAMP '%s 00:00:00' AND start <= TIMESTAMP '%s 23:59:59'",
			s.period, s.period)
	case kindMonth:
		return fmt.Sprintf("SELECT * FROM history WHERE substr(date, 1, 7) = '%s'", s.period)
	default:
		return "SELECT count(*) AS total_points, count(DISTINCT name) AS total_metrics, " +
			"min(date) AS first_date, max(date) AS last_date FROM history"
	}
}

// PeriodEnd returns the last instant of the scope's period in loc. The
// second return is false for the global scope, which has no period.
func (s Scope) PeriodEnd(loc *time.Location) (time.Time, bool) {
	switch s.kind {
	case kindDay, kindDayWorkouts:
		t, err := time.ParseInLocation("2006-01-02", s.period, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t.Add(24*time.Hour - time.Second), true
	case kindMonth:
		t, err := time.ParseInLocation("2006-01", s.period, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t.AddDate(0, 1, 0).Add(-time.Second), true
	default:
		return time.Time{}, false
	}
}

// Reshape rolls parsed result rows up into the scope's JSON shape.
func (s Scope) Reshape(rows []Row) (interface{}, error) {
	switch s.kind {
	case kindDay:
		return reshapeDetail(rows), nil
	case kindDayWorkouts:
		return reshapeWorkouts(rows)
	case kindMonth:
		return reshapeMonth(rows), nil
	default:
		return reshapeGlobal(rows), nil
	}
}

// reshapeDetail maps metric name to that metric's non-empty fields.
// Rows arrive one per metric per day; a duplicate name keeps the later row.
func reshapeDetail(rows []Row) map[string]map[string]string {
	result := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		result[row["name"]] = metricFields(row)
	}
	return result
}

// reshapeWorkouts keeps every workout row, decoding the route_json column
// back into a structured route field.
func reshapeWorkouts(rows []Row) ([]map[string]interface{}, error) {
	result := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		workout := make(map[string]interface{}, len(row))
		for key, value := range row {
			if key == "route" || key == "route_json" {
				continue
			}
			workout[key] = value
		}
		if encoded := row["route_json"]; encoded != "" {
			var route interface{}
			if err := json.Unmarshal([]byte(encoded), &route); err != nil {
				return nil, fmt.Errorf("failed to parse route: %w", err)
			}
			workout["route"] = route
		}
		result = append(result, workout)
	}
	return result, nil
}

// reshapeMonth groups rows by calendar day, each day holding the same
// metric-name mapping as the day detail rollup.
func reshapeMonth(rows []Row) map[string]map[string]map[string]string {
	result := make(map[string]map[string]map[string]string)
	for _, row := range rows {
		day := row["date"]
		if len(day) > 10 {
			day = day[:10]
		}
		if result[day] == nil {
			result[day] = make(map[string]map[string]string)
		}
		result[day][row["name"]] = metricFields(row)
	}
	return result
}

// reshapeGlobal keeps the last row as a flat mapping. The global query
// returns exactly one summary row in practice.
func reshapeGlobal(rows []Row) map[string]string {
	if len(rows) == 0 {
		return map[string]string{}
	}
	return rows[len(rows)-1]
}

func metricFields(row Row) map[string]string {
	fields := make(map[string]string, len(row))
	for key, value := range row {
		if value == "" || key == "name" || key == "date" {
			continue
		}
		fields[key] = value
	}
	return fields
}
