package importers

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// Hevy CSV columns.
const (
	hevyColTitle         = "title"
	hevyColStartTime     = "start_time"
	hevyColEndTime       = "end_time"
	hevyColDescription   = "description"
	hevyColExerciseTitle = "exercise_title"
	hevyColSetType       = "set_type"
	hevyColRPE           = "rpe"
)

// ParseHevyCSV parses workout sessions from a Hevy app CSV export. Rows
// sharing a start_time belong to one session; warmup sets are not counted.
func ParseHevyCSV(r io.Reader, loc *time.Location) (*ParsedFile, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importers: read hevy csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("importers: hevy csv has no data rows")
	}

	idx := headerIndex(records[0])
	for _, required := range []string{hevyColStartTime, hevyColExerciseTitle} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("importers: hevy csv missing required column %q", required)
		}
	}

	b := newSessionBuilder()
	for line, row := range records[1:] {
		startStr := colVal(row, idx, hevyColStartTime)
		exercise := colVal(row, idx, hevyColExerciseTitle)
		if startStr == "" || exercise == "" {
			continue
		}
		start, err := parseTimestamp(startStr, loc)
		if err != nil {
			return nil, fmt.Errorf("importers: hevy csv line %d: %w", line+2, err)
		}

		s := b.session(startStr, start, colVal(row, idx, hevyColTitle))
		if s.Duration == 0 {
			if end, err := parseTimestamp(colVal(row, idx, hevyColEndTime), loc); err == nil && end.After(start) {
				s.Duration = int(end.Sub(start).Round(time.Minute) / time.Minute)
			}
		}
		if desc := colVal(row, idx, hevyColDescription); desc != "" && s.Notes == "" {
			s.Notes = desc
		}

		if colVal(row, idx, hevyColSetType) == "warmup" {
			continue
		}
		b.addSet(startStr, exercise, parseRPE(colVal(row, idx, hevyColRPE)))
	}

	return b.build(FormatHevyCSV), nil
}
