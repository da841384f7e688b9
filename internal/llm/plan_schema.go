package llm

// PlanSchema constrains the plan generator's structured output. Every
// property is required and nullable fields use a ["type","null"] union so
// the schema is accepted by strict structured-output modes.
var PlanSchema = &Schema{
	Name:        "workout_plan",
	Description: "A multi-week workout plan with its workouts and weekly schedule.",
	Body: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"plan", "workouts", "weeklySchedules"},
		"properties": map[string]any{
			"plan": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"name", "description", "startDate", "endDate"},
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"description": nullable("string"),
					"startDate":   nullableDesc("string", "YYYY-MM-DD"),
					"endDate":     nullableDesc("string", "YYYY-MM-DD"),
				},
			},
			"workouts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required": []string{
						"id", "name", "description", "type", "activityType",
						"classId", "duration", "level", "exercises",
					},
					"properties": map[string]any{
						"id":           map[string]any{"type": "string", "description": "New unique id, never a catalog id"},
						"name":         map[string]any{"type": "string"},
						"description":  nullable("string"),
						"type":         map[string]any{"type": "string", "enum": []string{"class", "workout"}},
						"activityType": nullable("string"),
						"classId":      nullableDesc("string", "Catalog class id; required for class workouts, null otherwise"),
						"duration":     map[string]any{"type": "integer", "description": "Minutes"},
						"level":        nullable("string"),
						"exercises": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"additionalProperties": false,
								"required":             []string{"name", "sets", "reps", "weightKg"},
								"properties": map[string]any{
									"name":     map[string]any{"type": "string"},
									"sets":     map[string]any{"type": "integer"},
									"reps":     map[string]any{"type": "integer"},
									"weightKg": nullable("number"),
								},
							},
						},
					},
				},
			},
			"weeklySchedules": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"weekNumber", "workoutId"},
					"properties": map[string]any{
						"weekNumber": map[string]any{"type": "integer"},
						"workoutId":  map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

func nullableDesc(typ, desc string) map[string]any {
	m := nullable(typ)
	m["description"] = desc
	return m
}
