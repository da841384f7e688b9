// Package importers parses workout history exported by other fitness apps
// (Strong, Hevy) into completed sessions that can be recorded as tracking.
package importers

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Format identifies the source format of an import file.
type Format string

const (
	FormatStrongCSV Format = "strong_csv"
	FormatHevyCSV   Format = "hevy_csv"
)

// ErrUnknownFormat is returned when the content matches no supported export.
var ErrUnknownFormat = errors.New("importers: unrecognized file format")

// maxNotesLen caps the generated session summary.
const maxNotesLen = 500

// ParsedFile is the unified output from any parser.
type ParsedFile struct {
	Format   Format
	Sessions []Session
}

// Session is one completed workout from an export, in file order.
type Session struct {
	Name      string
	StartedAt time.Time
	// Duration in minutes; 0 when the export has none.
	Duration  int
	Notes     string
	Exercises []ExerciseSummary
	// MaxRPE is the hardest set's RPE, nil when no set recorded one.
	MaxRPE *float64
}

// ExerciseSummary counts the sets of one exercise within a session.
type ExerciseSummary struct {
	Name string
	Sets int
}

// Intensity maps MaxRPE onto the 1-10 tracking intensity scale.
func (s Session) Intensity() *int {
	if s.MaxRPE == nil {
		return nil
	}
	n := int(math.Round(*s.MaxRPE))
	n = max(1, min(10, n))
	return &n
}

// Summary renders the session as tracking notes, e.g.
// "Leg Day: Squat (3 sets), Lunge (2 sets). Felt strong".
func (s Session) Summary() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if len(s.Exercises) > 0 {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		for i, ex := range s.Exercises {
			if i > 0 {
				b.WriteString(", ")
			}
			set := "sets"
			if ex.Sets == 1 {
				set = "set"
			}
			fmt.Fprintf(&b, "%s (%d %s)", ex.Name, ex.Sets, set)
		}
	}
	if s.Notes != "" {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString(s.Notes)
	}
	out := b.String()
	if len(out) > maxNotesLen {
		out = strings.ToValidUTF8(out[:maxNotesLen-3], "") + "..."
	}
	return out
}

// Parse detects the format of data and parses it. Timestamps without a zone
// are read in loc.
func Parse(data []byte, loc *time.Location) (*ParsedFile, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch DetectFormat(data) {
	case FormatStrongCSV:
		return ParseStrongCSV(bytes.NewReader(trimBOM(data)), loc)
	case FormatHevyCSV:
		return ParseHevyCSV(bytes.NewReader(trimBOM(data)), loc)
	default:
		return nil, ErrUnknownFormat
	}
}

// DetectFormat identifies Strong vs Hevy CSV from the header row. Returns
// empty string if unknown.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(trimBOM(data), " \t\r\n")

	firstLine := firstLineOf(trimmed)
	if containsAll(firstLine, "Exercise Name", "Set Order", "Weight", "Reps") {
		return FormatStrongCSV
	}
	if containsAll(firstLine, "exercise_title", "set_index", "start_time") {
		return FormatHevyCSV
	}
	return ""
}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func firstLineOf(data []byte) string {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}

func containsAll(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// parseTimestamp reads the timestamp layouts seen in Strong and Hevy exports.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	layouts := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2 Jan 2006, 15:04",
		"Jan 2, 2006, 3:04 PM",
		"2006-01-02",
		"2006 Jan 2",
		"Jan 2, 2006",
		"01/02/2006",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// sessionBuilder groups set rows into sessions keyed by their start value.
type sessionBuilder struct {
	sessions map[string]*Session
	order    []string
	counts   map[string]map[string]int
}

func newSessionBuilder() *sessionBuilder {
	return &sessionBuilder{
		sessions: make(map[string]*Session),
		counts:   make(map[string]map[string]int),
	}
}

// session returns the session for key, creating it on first sight.
func (b *sessionBuilder) session(key string, start time.Time, name string) *Session {
	s, ok := b.sessions[key]
	if !ok {
		s = &Session{Name: name, StartedAt: start}
		b.sessions[key] = s
		b.order = append(b.order, key)
		b.counts[key] = make(map[string]int)
	}
	return s
}

// addSet counts one set of exercise and folds rpe into the session maximum.
func (b *sessionBuilder) addSet(key, exercise string, rpe *float64) {
	s := b.sessions[key]
	counts := b.counts[key]
	if _, seen := counts[exercise]; !seen {
		s.Exercises = append(s.Exercises, ExerciseSummary{Name: exercise})
	}
	counts[exercise]++
	for i := range s.Exercises {
		if s.Exercises[i].Name == exercise {
			s.Exercises[i].Sets = counts[exercise]
		}
	}
	if rpe != nil && (s.MaxRPE == nil || *rpe > *s.MaxRPE) {
		v := *rpe
		s.MaxRPE = &v
	}
}

func (b *sessionBuilder) build(format Format) *ParsedFile {
	pf := &ParsedFile{Format: format}
	for _, key := range b.order {
		pf.Sessions = append(pf.Sessions, *b.sessions[key])
	}
	return pf
}

// colVal safely gets a column value from a CSV row.
func colVal(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	return idx
}
