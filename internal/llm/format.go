package llm

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	notSpecified     = "Not specified"
	recentWorkoutMax = 5
)

// FormatUserContext renders uc as the labeled plain-text block embedded in
// system prompts. It is deterministic and does no I/O.
func FormatUserContext(uc *UserContext) string {
	if uc == nil {
		uc = &UserContext{}
	}
	p := uc.Profile
	if p == nil {
		p = &Profile{}
	}

	var b strings.Builder

	b.WriteString("PROFILE:\n")
	fmt.Fprintf(&b, "Name: %s\n", str(p.Name))
	fmt.Fprintf(&b, "Age: %s\n", num(p.Age))
	fmt.Fprintf(&b, "Height: %s\n", measure(p.HeightCm, "cm"))
	fmt.Fprintf(&b, "Weight: %s\n", measure(p.WeightKg, "kg"))
	fmt.Fprintf(&b, "Gender: %s\n", str(p.Gender))
	fmt.Fprintf(&b, "Fitness Level: %s\n", str(p.FitnessLevel))
	fmt.Fprintf(&b, "Goals: %s\n", list(p.FitnessGoals))
	fmt.Fprintf(&b, "Goal Timeline: %s\n", str(p.GoalTimeline))
	fmt.Fprintf(&b, "Exercise Preferences: %s\n", list(p.ExercisePreferences))
	fmt.Fprintf(&b, "Exercise Frequency: %s\n", str(p.ExerciseFrequency))
	fmt.Fprintf(&b, "Session Length: %s\n", str(p.SessionLength))
	fmt.Fprintf(&b, "Pilates Experience: %s\n", yesNo(p.PilatesExperience))
	fmt.Fprintf(&b, "Pilates Duration: %s\n", str(p.PilatesDuration))
	fmt.Fprintf(&b, "Studio Frequency: %s\n", str(p.StudioFrequency))
	fmt.Fprintf(&b, "Session Preference: %s\n", str(p.SessionPreference))
	fmt.Fprintf(&b, "Apparatus Preferences: %s\n", list(p.ApparatusPreferences))
	fmt.Fprintf(&b, "Motivation: %s\n", list(p.Motivation))
	fmt.Fprintf(&b, "Progress Tracking: %s\n", list(p.ProgressTracking))

	b.WriteString("\nHEALTH:\n")
	switch {
	case p.Injuries != nil && !*p.Injuries:
		b.WriteString("No injuries reported\n")
	case p.Injuries != nil:
		fmt.Fprintf(&b, "Injuries: %s\n", str(p.InjuriesDetails))
	default:
		fmt.Fprintf(&b, "Injuries: %s\n", notSpecified)
	}
	if p.RecentSurgery != nil && *p.RecentSurgery {
		fmt.Fprintf(&b, "Recent Surgery: %s\n", str(p.SurgeryDetails))
	} else {
		fmt.Fprintf(&b, "Recent Surgery: %s\n", yesNo(p.RecentSurgery))
	}
	fmt.Fprintf(&b, "Chronic Conditions: %s\n", list(p.ChronicConditions))
	fmt.Fprintf(&b, "Pregnancy: %s\n", str(p.Pregnancy))

	b.WriteString("\nRECENT ACTIVITY:\n")
	c := uc.RecentActivity.Consistency
	fmt.Fprintf(&b, "Weekly Average: %s workouts\n", strconv.FormatFloat(c.WeeklyAverage, 'f', 1, 64))
	fmt.Fprintf(&b, "Monthly Average: %s workouts\n", strconv.FormatFloat(c.MonthlyAverage, 'f', 1, 64))
	fmt.Fprintf(&b, "Current Streak: %d days\n", c.Streak)
	b.WriteString("Recent Workouts:\n")
	workouts := uc.RecentActivity.Workouts
	if len(workouts) == 0 {
		b.WriteString("- No recent workouts recorded\n")
	} else {
		start := max(len(workouts)-recentWorkoutMax, 0)
		for i := len(workouts) - 1; i >= start; i-- {
			b.WriteString("- ")
			b.WriteString(completedLine(workouts[i]))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nCURRENT PLAN:\n")
	if len(uc.WorkoutPlan) == 0 {
		b.WriteString("No active plan\n")
	} else {
		for i, pw := range uc.WorkoutPlan {
			fmt.Fprintf(&b, "%d. %s (week %d, %s, %s)\n", i+1, pw.Name, pw.WeekNumber, pw.Type, plannedStatus(pw))
		}
	}

	b.WriteString("\nPROGRESS:\n")
	wrote := false
	for _, goal := range p.FitnessGoals {
		score, ok := uc.Progress.GoalProgress[goal]
		if !ok {
			continue
		}
		wrote = true
		if score.Status == GoalNotImplemented {
			fmt.Fprintf(&b, "%s: not yet tracked\n", goal)
			continue
		}
		fmt.Fprintf(&b, "%s: %d/100\n", goal, score.Score)
	}
	if !wrote {
		fmt.Fprintf(&b, "Goal Progress: %s\n", notSpecified)
	}
	fmt.Fprintf(&b, "Improvements: %s\n", list(uc.Progress.Improvements))
	fmt.Fprintf(&b, "Challenges: %s\n", list(uc.Progress.Challenges))

	return b.String()
}

func completedLine(w CompletedWorkout) string {
	parts := []string{w.CompletedAt.Format("2006-01-02"), w.Name}
	kind := w.Type
	if w.ActivityType != "" {
		kind = w.ActivityType
	}
	if kind != "" {
		parts = append(parts, kind)
	}
	if w.Duration != nil {
		parts = append(parts, fmt.Sprintf("%d min", *w.Duration))
	}
	if w.Intensity != nil {
		parts = append(parts, fmt.Sprintf("intensity %d/10", *w.Intensity))
	}
	if w.WouldDoAgain != nil {
		if *w.WouldDoAgain {
			parts = append(parts, "would do again")
		} else {
			parts = append(parts, "would not repeat")
		}
	}
	return strings.Join(parts, ", ")
}

func plannedStatus(pw PlannedWorkout) string {
	status := strings.ReplaceAll(pw.Status, "_", " ")
	if status == "" {
		status = "not recorded"
	}
	if pw.IsBooked {
		status += ", booked"
	}
	return status
}

func str(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return notSpecified
	}
	return *s
}

func num(n *int) string {
	if n == nil {
		return notSpecified
	}
	return strconv.Itoa(*n)
}

func measure(f *float64, unit string) string {
	if f == nil {
		return notSpecified
	}
	return strconv.FormatFloat(*f, 'f', -1, 64) + " " + unit
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return notSpecified
	case *b:
		return "Yes"
	default:
		return "No"
	}
}

func list(items []string) string {
	if len(items) == 0 {
		return notSpecified
	}
	return strings.Join(items, ", ")
}
