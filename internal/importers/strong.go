package importers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Strong CSV columns (as exported by the Strong app).
// Date,Workout Name,Duration,Exercise Name,Set Order,Weight,Reps,Distance,Seconds,Notes,Workout Notes,RPE
const (
	strongColDate         = "Date"
	strongColWorkoutName  = "Workout Name"
	strongColDuration     = "Duration"
	strongColExerciseName = "Exercise Name"
	strongColWorkoutNotes = "Workout Notes"
	strongColRPE          = "RPE"
)

// ParseStrongCSV parses workout sessions from a Strong app CSV export. Rows
// sharing a Date value belong to one session.
func ParseStrongCSV(r io.Reader, loc *time.Location) (*ParsedFile, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importers: read strong csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("importers: strong csv has no data rows")
	}

	idx := headerIndex(records[0])
	for _, required := range []string{strongColDate, strongColExerciseName} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("importers: strong csv missing required column %q", required)
		}
	}

	b := newSessionBuilder()
	for line, row := range records[1:] {
		dateStr := colVal(row, idx, strongColDate)
		exercise := colVal(row, idx, strongColExerciseName)
		if dateStr == "" || exercise == "" {
			continue
		}
		start, err := parseTimestamp(dateStr, loc)
		if err != nil {
			return nil, fmt.Errorf("importers: strong csv line %d: %w", line+2, err)
		}

		s := b.session(dateStr, start, colVal(row, idx, strongColWorkoutName))
		if s.Duration == 0 {
			s.Duration = parseStrongDuration(colVal(row, idx, strongColDuration))
		}
		// First non-empty value per workout wins.
		if wn := colVal(row, idx, strongColWorkoutNotes); wn != "" && s.Notes == "" {
			s.Notes = wn
		}

		b.addSet(dateStr, exercise, parseRPE(colVal(row, idx, strongColRPE)))
	}

	return b.build(FormatStrongCSV), nil
}

// parseStrongDuration reads Strong's "1h 5m" style durations as whole
// minutes. Unparseable values yield 0.
func parseStrongDuration(s string) int {
	var total time.Duration
	for _, part := range strings.Fields(s) {
		d, err := time.ParseDuration(part)
		if err != nil {
			return 0
		}
		total += d
	}
	return int(total.Round(time.Minute) / time.Minute)
}

// parseRPE returns a valid 1-10 RPE or nil.
func parseRPE(s string) *float64 {
	if s == "" {
		return nil
	}
	rpe, err := strconv.ParseFloat(s, 64)
	if err != nil || rpe < 1 || rpe > 10 {
		return nil
	}
	return &rpe
}
