package llm

import (
	"math"
	"strings"
)

// GoalStatus distinguishes a computed score from a goal that has no scoring
// strategy yet.
type GoalStatus string

const (
	GoalScored         GoalStatus = "scored"
	GoalNotImplemented GoalStatus = "not_implemented"
)

// weeklyTarget is the number of sessions per week that counts as fully
// consistent.
const weeklyTarget = 3

// GoalScore is a 0-100 progress score for one declared goal.
type GoalScore struct {
	Score  int        `json:"score"`
	Status GoalStatus `json:"status"`
}

// GoalInput is what an evaluator may look at.
type GoalInput struct {
	WeeklyAverage float64
	// Variety is distinct activities / 4, unclamped.
	Variety  float64
	Workouts []CompletedWorkout
}

// GoalEvaluator scores one goal.
type GoalEvaluator func(GoalInput) GoalScore

// GoalEvaluators maps lowercased, space-separated goal names to their
// strategy. Goals without an entry fall back to weekly consistency.
type GoalEvaluators map[string]GoalEvaluator

// DefaultGoalEvaluators returns the built-in strategies.
func DefaultGoalEvaluators() GoalEvaluators {
	return GoalEvaluators{
		"strength":         notImplemented,
		"flexibility":      notImplemented,
		"endurance":        notImplemented,
		"weight loss":      notImplemented,
		"maintain fitness": maintainFitness,
	}
}

// goalKeyReplacer folds "Weight-Loss" and "weight_loss" onto "weight loss".
var goalKeyReplacer = strings.NewReplacer("-", " ", "_", " ")

// Evaluate scores goal using its registered strategy, matched
// case-insensitively with hyphens and underscores read as spaces.
func (g GoalEvaluators) Evaluate(goal string, in GoalInput) GoalScore {
	key := goalKeyReplacer.Replace(strings.ToLower(strings.TrimSpace(goal)))
	if fn, ok := g[key]; ok {
		return fn(in)
	}
	return consistencyScore(in)
}

func notImplemented(GoalInput) GoalScore {
	return GoalScore{Status: GoalNotImplemented}
}

func maintainFitness(in GoalInput) GoalScore {
	consistency := math.Min(in.WeeklyAverage/weeklyTarget, 1)
	variety := math.Min(in.Variety, 1)
	return GoalScore{
		Score:  int(math.Round(consistency*60 + variety*40)),
		Status: GoalScored,
	}
}

func consistencyScore(in GoalInput) GoalScore {
	return GoalScore{
		Score:  int(math.Round(math.Min(in.WeeklyAverage/weeklyTarget, 1) * 100)),
		Status: GoalScored,
	}
}
