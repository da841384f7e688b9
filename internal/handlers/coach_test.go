package handlers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/models"
)

const handlerPlanJSON = `{
  "plan": {"name": "Spring Reset", "description": "Four weeks of balance", "startDate": null, "endDate": null},
  "workouts": [
    {"id": "a", "name": "Reformer Flow", "description": null, "type": "class", "activityType": null,
     "classId": "class-reformer-flow", "duration": 0, "level": null, "exercises": []},
    {"id": "b", "name": "Easy Run", "description": "Conversational pace", "type": "workout",
     "activityType": "running", "classId": null, "duration": 30, "level": "beginner",
     "exercises": [{"name": "Easy Run", "sets": 1, "reps": 1, "weightKg": null}]}
  ],
  "weeklySchedules": [
    {"weekNumber": 1, "workoutId": "a"},
    {"weekNumber": 1, "workoutId": "b"},
    {"weekNumber": 2, "workoutId": "a"}
  ]
}`

func TestContext(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	c := env.login(t, "dana")

	if status, body := c.do("PUT", "/api/onboarding", map[string]any{
		"name": "Dana", "fitnessLevel": "intermediate", "fitnessGoals": []string{"flexibility"},
	}); status != http.StatusOK {
		t.Fatalf("onboarding status = %d: %s", status, body)
	}

	status, body := c.do("GET", "/api/context?days=14", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var resp struct {
		Context struct {
			UserID int64 `json:"user_id"`
		} `json:"context"`
		Formatted string `json:"formatted"`
	}
	decode(t, body, &resp)
	if !strings.HasPrefix(resp.Formatted, "PROFILE:") {
		t.Errorf("formatted = %q, want PROFILE: prefix", resp.Formatted)
	}
	if !strings.Contains(resp.Formatted, "Dana") {
		t.Errorf("formatted context is missing the profile name:\n%s", resp.Formatted)
	}

	if status, _ := c.do("GET", "/api/context?days=abc", nil); status != http.StatusBadRequest {
		t.Errorf("bad days status = %d, want 400", status)
	}
}

func TestChat(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	c := env.login(t, "dana")

	status, body := c.do("POST", "/api/chat", map[string]string{"message": "How often should I train?"})
	if status != http.StatusOK {
		t.Fatalf("chat status = %d: %s", status, body)
	}
	var resp struct {
		Reply string `json:"reply"`
	}
	decode(t, body, &resp)
	if resp.Reply != env.provider.FixedContent {
		t.Errorf("reply = %q, want %q", resp.Reply, env.provider.FixedContent)
	}

	calls := env.provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if !strings.HasPrefix(calls[0].System, "Your name is Coach Ava.") {
		t.Errorf("system prompt = %q, want default persona", calls[0].System[:min(60, len(calls[0].System))])
	}
	if !strings.Contains(calls[0].System, "PROFILE:") {
		t.Error("system prompt is missing the user context")
	}

	status, body = c.do("GET", "/api/chat", nil)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	var history []chatMessageView
	decode(t, body, &history)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "How often should I train?" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != env.provider.FixedContent {
		t.Errorf("history[1] = %+v", history[1])
	}

	// The second turn replays the stored history to the provider.
	if status, _ := c.do("POST", "/api/chat", map[string]string{"message": "And on rest days?"}); status != http.StatusOK {
		t.Fatalf("second chat status = %d", status)
	}
	calls = env.provider.Calls()
	if got := len(calls[1].Messages); got != 3 {
		t.Errorf("second call messages = %d, want 3", got)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		body  any
		want  int
	}{
		{name: "empty message", body: map[string]string{"message": "   "}, want: http.StatusBadRequest},
		{name: "too long", body: map[string]string{"message": strings.Repeat("a", maxChatMessageLen+1)}, want: http.StatusRequestEntityTooLarge},
		{
			name:  "not configured",
			setup: func(env *testEnv) { env.provider = nil },
			body:  map[string]string{"message": "hi"},
			want:  http.StatusServiceUnavailable,
		},
		{
			name:  "provider failure",
			setup: func(env *testEnv) { env.provider.GenerateErr = errors.New("upstream exploded") },
			body:  map[string]string{"message": "hi"},
			want:  http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedUser(t, env.db, "dana", false)
			c := env.login(t, "dana")
			if tt.setup != nil {
				tt.setup(env)
			}

			status, body := c.do("POST", "/api/chat", tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d: %s", status, tt.want, body)
			}
			if strings.Contains(string(body), "upstream exploded") {
				t.Error("provider error leaked to the client")
			}

			_, body = c.do("GET", "/api/chat", nil)
			var history []chatMessageView
			decode(t, body, &history)
			if len(history) != 0 {
				t.Errorf("history after failure = %d messages, want 0", len(history))
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	c := env.login(t, "dana")

	type promptResp struct {
		Name      string `json:"name"`
		Prompt    string `json:"prompt"`
		IsDefault bool   `json:"isDefault"`
	}

	_, body := c.do("GET", "/api/chat/system-prompt", nil)
	var got promptResp
	decode(t, body, &got)
	if !got.IsDefault || got.Name != llm.DefaultPersona.Name {
		t.Errorf("default prompt = %+v", got)
	}

	if status, _ := c.do("PUT", "/api/chat/system-prompt", map[string]string{"name": "Sam", "prompt": ""}); status != http.StatusUnprocessableEntity {
		t.Errorf("blank prompt status = %d, want 422", status)
	}

	status, body := c.do("PUT", "/api/chat/system-prompt", map[string]string{"name": "Sam", "prompt": "You are a strict coach."})
	if status != http.StatusOK {
		t.Fatalf("put status = %d: %s", status, body)
	}
	decode(t, body, &got)
	if got.IsDefault || got.Name != "Sam" {
		t.Errorf("saved prompt = %+v", got)
	}

	if status, _ := c.do("POST", "/api/chat", map[string]string{"message": "hello"}); status != http.StatusOK {
		t.Fatalf("chat status = %d", status)
	}
	calls := env.provider.Calls()
	sys := calls[len(calls)-1].System
	if !strings.HasPrefix(sys, "Your name is Sam.") || !strings.Contains(sys, "You are a strict coach.") {
		t.Errorf("system prompt does not use the custom persona: %q", sys)
	}
}

func TestGeneratePlan(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	c := env.login(t, "dana")
	env.provider.FixedContent = handlerPlanJSON

	status, body := c.do("POST", "/api/plans/generate", map[string]string{"prompt": "Mix in some running"})
	if status != http.StatusCreated {
		t.Fatalf("generate status = %d: %s", status, body)
	}
	var active activePlanView
	decode(t, body, &active)
	if active.Plan.Name != "Spring Reset" || !active.Plan.IsActive {
		t.Errorf("plan = %+v", active.Plan)
	}
	if len(active.Schedule) != 3 {
		t.Fatalf("schedule entries = %d, want 3", len(active.Schedule))
	}
	first := active.Schedule[0].Workout
	if first.Type != models.WorkoutTypeClass || first.ClassID == nil || *first.ClassID != "class-reformer-flow" {
		t.Errorf("first workout = %+v", first)
	}
	if first.ID == "a" {
		t.Error("workout id was not re-keyed")
	}

	calls := env.provider.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Messages[0].Content, "Mix in some running") {
		t.Errorf("provider was not sent the user prompt: %+v", calls)
	}
	if calls[0].Options.Schema == nil {
		t.Error("plan request was sent without the plan schema")
	}

	if got := env.notifier.Calls(); len(got) != 1 || got[0] != "plan_ready|New workout plan|/plans/active" {
		t.Errorf("notifications = %v", got)
	}

	status, body = c.do("GET", "/api/plans/active", nil)
	if status != http.StatusOK {
		t.Fatalf("active status = %d", status)
	}
	var again activePlanView
	decode(t, body, &again)
	if again.Plan.ID != active.Plan.ID {
		t.Errorf("active plan id = %q, want %q", again.Plan.ID, active.Plan.ID)
	}

	if status, _ := c.do("POST", "/api/plans/"+active.Plan.ID+"/archive", nil); status != http.StatusNoContent {
		t.Fatalf("archive status = %d", status)
	}
	if status, _ := c.do("GET", "/api/plans/active", nil); status != http.StatusNotFound {
		t.Errorf("active after archive status = %d, want 404", status)
	}
	if status, _ := c.do("POST", "/api/plans/missing/archive", nil); status != http.StatusNotFound {
		t.Errorf("archive unknown status = %d, want 404", status)
	}
}

func TestGeneratePlan_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		body    any
		want    int
	}{
		{name: "not json", content: "I can't make a plan today.", want: http.StatusBadGateway},
		{
			name:    "unknown class",
			content: strings.ReplaceAll(handlerPlanJSON, "class-reformer-flow", "class-does-not-exist"),
			want:    http.StatusBadGateway,
		},
		{
			name:    "prompt too long",
			content: handlerPlanJSON,
			body:    map[string]string{"prompt": strings.Repeat("x", maxPlanPromptLen+1)},
			want:    http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedUser(t, env.db, "dana", false)
			c := env.login(t, "dana")
			env.provider.FixedContent = tt.content

			if status, body := c.do("POST", "/api/plans/generate", tt.body); status != tt.want {
				t.Fatalf("status = %d, want %d: %s", status, tt.want, body)
			}
			if status, _ := c.do("GET", "/api/plans/active", nil); status != http.StatusNotFound {
				t.Errorf("active plan status = %d, want 404", status)
			}
			if got := env.notifier.Calls(); len(got) != 0 {
				t.Errorf("notifications = %v, want none", got)
			}
		})
	}
}

func TestUpdateWorkoutAndCatalog(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	seedUser(t, env.db, "erin", false)
	c := env.login(t, "dana")
	env.provider.FixedContent = handlerPlanJSON

	_, body := c.do("POST", "/api/plans/generate", nil)
	var active activePlanView
	decode(t, body, &active)
	id := active.Schedule[0].Workout.ID

	status, body := c.do("PUT", "/api/workouts/"+id, map[string]any{"status": "completed", "isBooked": true})
	if status != http.StatusOK {
		t.Fatalf("update status = %d: %s", status, body)
	}
	var wo workoutView
	decode(t, body, &wo)
	if wo.Status != models.StatusCompleted || !wo.IsBooked {
		t.Errorf("workout = %+v", wo)
	}

	if status, _ := c.do("PUT", "/api/workouts/"+id, map[string]string{"status": "skipped"}); status != http.StatusUnprocessableEntity {
		t.Errorf("bad status = %d, want 422", status)
	}
	other := env.login(t, "erin")
	if status, _ := other.do("PUT", "/api/workouts/"+id, map[string]bool{"isBooked": false}); status != http.StatusNotFound {
		t.Errorf("foreign workout status = %d, want 404", status)
	}

	_, body = c.do("GET", "/api/classes", nil)
	var classes []workoutView
	decode(t, body, &classes)
	if len(classes) != 6 {
		t.Errorf("classes = %d, want 6", len(classes))
	}
	_, body = c.do("GET", "/api/activity-types", nil)
	var activities []activityTypeView
	decode(t, body, &activities)
	if len(activities) != 7 {
		t.Errorf("activity types = %d, want 7", len(activities))
	}
}
