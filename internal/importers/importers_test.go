package importers

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const strongHeader = "Date,Workout Name,Duration,Exercise Name,Set Order,Weight,Reps,Distance,Seconds,Notes,Workout Notes,RPE\n"

const hevyHeader = "title,start_time,end_time,description,exercise_title,superset_id,exercise_notes,set_index,set_type,weight_lbs,reps,rpe,duration_seconds,distance_km\n"

// --- DetectFormat tests ---

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"strong", []byte(strongHeader), FormatStrongCSV},
		{"strong with BOM", append([]byte{0xEF, 0xBB, 0xBF}, strongHeader...), FormatStrongCSV},
		{"hevy", []byte(hevyHeader), FormatHevyCSV},
		{"hevy leading blank line", []byte("\n" + hevyHeader), FormatHevyCSV},
		{"json", []byte(`{"version": "1.0"}`), ""},
		{"unknown", []byte("some random text\n"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Strong CSV parser tests ---

func TestParseStrongCSV_Basic(t *testing.T) {
	csv := strongHeader +
		"2024-01-15 08:00:00,Morning,1h 5m,Bench Press,1,135,5,,,,Felt strong,\n" +
		"2024-01-15 08:00:00,Morning,1h 5m,Bench Press,2,155,5,,,,,7\n" +
		"2024-01-15 08:00:00,Morning,1h 5m,Squat,1,225,3,,,,,8.5\n"

	pf, err := ParseStrongCSV(strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseStrongCSV: %v", err)
	}
	if pf.Format != FormatStrongCSV {
		t.Errorf("Format = %q, want %q", pf.Format, FormatStrongCSV)
	}
	if len(pf.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(pf.Sessions))
	}

	s := pf.Sessions[0]
	want := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	if !s.StartedAt.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", s.StartedAt, want)
	}
	if s.Name != "Morning" || s.Duration != 65 || s.Notes != "Felt strong" {
		t.Errorf("session = %+v", s)
	}
	if len(s.Exercises) != 2 || s.Exercises[0] != (ExerciseSummary{"Bench Press", 2}) || s.Exercises[1] != (ExerciseSummary{"Squat", 1}) {
		t.Errorf("exercises = %+v", s.Exercises)
	}
	if s.MaxRPE == nil || *s.MaxRPE != 8.5 {
		t.Errorf("MaxRPE = %v, want 8.5", s.MaxRPE)
	}
	if got := s.Intensity(); got == nil || *got != 9 {
		t.Errorf("Intensity = %v, want 9", got)
	}
	if got, want := s.Summary(), "Morning: Bench Press (2 sets), Squat (1 set). Felt strong"; got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestParseStrongCSV_MultipleSessions(t *testing.T) {
	csv := strongHeader +
		"2024-01-15 08:00:00,Morning,30m,Bench Press,1,135,5,,,,,\n" +
		"2024-01-15 18:00:00,Evening,20m,Plank,1,,,,60,,,\n" +
		"2024-01-16 08:00:00,Morning,30m,Squat,1,225,3,,,,,\n"

	pf, err := ParseStrongCSV(strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseStrongCSV: %v", err)
	}
	if len(pf.Sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(pf.Sessions))
	}
	if pf.Sessions[1].Name != "Evening" || pf.Sessions[1].Intensity() != nil {
		t.Errorf("second session = %+v", pf.Sessions[1])
	}
}

func TestParseStrongCSV_Location(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	csv := strongHeader + "2024-01-15 23:30:00,Late,30m,Squat,1,225,3,,,,,\n"

	pf, err := ParseStrongCSV(strings.NewReader(csv), loc)
	if err != nil {
		t.Fatalf("ParseStrongCSV: %v", err)
	}
	want := time.Date(2024, 1, 16, 4, 30, 0, 0, time.UTC)
	if !pf.Sessions[0].StartedAt.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", pf.Sessions[0].StartedAt.UTC(), want)
	}
}

func TestParseStrongCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"header only", strongHeader},
		{"missing column", "Date,Workout Name\n2024-01-15,Morning\n"},
		{"bad date", strongHeader + "yesterday,Morning,30m,Squat,1,225,3,,,,,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStrongCSV(strings.NewReader(tt.csv), time.UTC); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParseStrongDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"30m", 30},
		{"1h 5m", 65},
		{"45m 40s", 46},
		{"", 0},
		{"about an hour", 0},
	}
	for _, tt := range tests {
		if got := parseStrongDuration(tt.in); got != tt.want {
			t.Errorf("parseStrongDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// --- Hevy CSV parser tests ---

func TestParseHevyCSV_Basic(t *testing.T) {
	csv := hevyHeader +
		`Leg Day,"15 Feb 2026, 14:30","15 Feb 2026, 15:20",Heavy legs,Squat,,,0,warmup,95,10,,,` + "\n" +
		`Leg Day,"15 Feb 2026, 14:30","15 Feb 2026, 15:20",Heavy legs,Squat,,,1,normal,225,5,8,,` + "\n" +
		`Leg Day,"15 Feb 2026, 14:30","15 Feb 2026, 15:20",Heavy legs,Squat,,,2,normal,225,5,9,,` + "\n" +
		`Leg Day,"15 Feb 2026, 14:30","15 Feb 2026, 15:20",Heavy legs,Lunge,,,0,normal,50,10,,,` + "\n"

	pf, err := ParseHevyCSV(strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("ParseHevyCSV: %v", err)
	}
	if pf.Format != FormatHevyCSV {
		t.Errorf("Format = %q, want %q", pf.Format, FormatHevyCSV)
	}
	if len(pf.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(pf.Sessions))
	}

	s := pf.Sessions[0]
	if !s.StartedAt.Equal(time.Date(2026, 2, 15, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("StartedAt = %v", s.StartedAt)
	}
	if s.Duration != 50 || s.Notes != "Heavy legs" || s.Name != "Leg Day" {
		t.Errorf("session = %+v", s)
	}
	if len(s.Exercises) != 2 || s.Exercises[0].Sets != 2 {
		t.Errorf("exercises = %+v, want warmups excluded", s.Exercises)
	}
	if got := s.Intensity(); got == nil || *got != 9 {
		t.Errorf("Intensity = %v, want 9", got)
	}
}

func TestParseHevyCSV_MissingColumn(t *testing.T) {
	csv := "title,exercise_title\nLeg Day,Squat\n"
	if _, err := ParseHevyCSV(strings.NewReader(csv), time.UTC); err == nil {
		t.Fatal("expected error for missing start_time column")
	}
}

// --- Parse / Summary tests ---

func TestParse(t *testing.T) {
	csv := strongHeader + "2024-01-15 08:00:00,Morning,30m,Squat,1,225,3,,,,,\n"
	pf, err := Parse([]byte(csv), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pf.Format != FormatStrongCSV || len(pf.Sessions) != 1 {
		t.Errorf("parsed = %+v", pf)
	}

	if _, err := Parse([]byte("a,b,c\n1,2,3\n"), nil); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Parse(unknown) error = %v, want ErrUnknownFormat", err)
	}
}

func TestSessionSummary_Truncates(t *testing.T) {
	s := Session{Name: "Long", Notes: strings.Repeat("x", 2*maxNotesLen)}
	got := s.Summary()
	if len(got) != maxNotesLen || !strings.HasSuffix(got, "...") {
		t.Errorf("Summary length = %d, want %d with ellipsis", len(got), maxNotesLen)
	}
}
