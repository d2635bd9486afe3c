package llm

import (
	"github.com/joseph-ayodele/labelscan/constants"
)

// RequiredSchema is the structural minimum every parsed response must meet.
func RequiredSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"health_score", "breakdown"},
		"properties": map[string]any{
			"health_score": map[string]any{"type": "integer"},
			"breakdown":    map[string]any{"type": "object"},
		},
	}
}

// BuildAnalysisJSONSchema returns the full response schema for mode
// (JSON-Schema draft 2020-12 subset). Unknown keys are tolerated.
func BuildAnalysisJSONSchema(mode constants.Mode) map[string]any {
	props := map[string]any{
		"health_score": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"eatability": map[string]any{
			"type": "string",
			"enum": constants.EatabilityAsStringSlice(),
		},
		"breakdown": map[string]any{
			"type":     "object",
			"required": []string{"sweeteners", "preservatives", "flagged"},
			"properties": map[string]any{
				"sweeteners":    percentProp(),
				"preservatives": percentProp(),
				"flagged":       stringArray(),
			},
		},
		"confidence_analysis": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"ingredient"},
				"properties": map[string]any{
					"ingredient": map[string]any{"type": "string", "minLength": 1},
					"confidence": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
					"risk_level": map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
					"condition":  map[string]any{"type": "string"},
				},
			},
		},
		"interactions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"combo"},
				"properties": map[string]any{
					"combo":         map[string]any{"type": "string", "minLength": 1},
					"risk_increase": map[string]any{"type": "string"},
					"concern":       map[string]any{"type": "string"},
				},
			},
		},
	}
	required := []string{"health_score", "eatability", "breakdown", "confidence_analysis", "interactions"}

	switch mode {
	case constants.ModeAllergen:
		props["allergens"] = stringArray()
		props["cross_contamination"] = map[string]any{"type": "boolean"}
		required = append(required, "allergens", "cross_contamination")
	case constants.ModeDiabetes:
		props["sugar_content"] = levelProp()
		props["glycemic_risk"] = levelProp()
		props["reason"] = map[string]any{"type": "string"}
		required = append(required, "sugar_content", "glycemic_risk", "reason")
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func percentProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\s*(<\s*)?\d+(\.\d+)?\s*%\s*$`,
	}
}

func levelProp() map[string]any {
	return map[string]any{
		"type": "string",
		"enum": constants.LevelsAsStringSlice(),
	}
}

func stringArray() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}
