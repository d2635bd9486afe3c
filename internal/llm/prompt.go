package llm

import (
	"strings"

	"github.com/joseph-ayodele/labelscan/constants"
)

// BuildPrompt composes the analysis instruction for text in the given mode.
// The output depends only on its arguments.
func BuildPrompt(text string, mode constants.Mode) string {
	parts := []string{buildCore(text)}
	if block := buildModeFields(mode); block != "" {
		parts = append(parts, block)
	}
	parts = append(parts, buildFooter())
	return strings.Join(parts, "\n\n")
}

func buildCore(text string) string {
	intro := []string{
		"You are an expert in food safety and nutrition. I'm going to give you the text extracted from a food label. " +
			"Your job is to analyze the ingredients and provide a detailed health assessment.",
		"Here is the extracted text from the food label:\n\"" + text + "\"",
		"First, identify which parts of the text are actual ingredients. " +
			"Then analyze only those ingredients and provide:",
	}

	steps := []string{
		"1. A health score from 0 to 100, where 0 is extremely unhealthy and 100 is perfectly healthy.",
		"2. Categorize the product as: \"" + string(constants.SafeForDaily) + "\" consumption, \"" +
			string(constants.OccasionallyOK) + "\", or \"" + string(constants.Avoid) + "\".",
		"3. Estimate the percentage of artificial sweeteners and preservatives.",
		"4. List any harmful additives or concerning ingredients.",
		"5. For each concerning ingredient, provide its confidence of detection (0-100%), risk level (1-10), and potential health effects.",
		"6. Identify any risky ingredient combinations and their potential health impacts.",
	}

	example := `Return your analysis in this exact JSON format:
{
  "health_score": 75,
  "eatability": "Occasionally OK",
  "breakdown": {
    "sweeteners": "12%",
    "preservatives": "8%",
    "flagged": ["Red 40", "MSG"]
  },
  "confidence_analysis": [
    { "ingredient": "MSG", "confidence": 94, "risk_level": 7, "condition": "headache" }
  ],
  "interactions": [
    { "combo": "Sodium + Sodium Benzoate", "risk_increase": "40%", "concern": "hypertension" }
  ]
}`

	return strings.Join(intro, "\n\n") + "\n\n" + strings.Join(steps, "\n") + "\n\n" + example
}

// buildModeFields returns the extra response fields for mode; empty for general.
func buildModeFields(mode constants.Mode) string {
	switch mode {
	case constants.ModeAllergen:
		return strings.Join([]string{
			"Also include these fields in your JSON response:",
			`"allergens": ["Peanuts", "Soy"], // List any allergens found`,
			`"cross_contamination": true, // Boolean indicating if there's risk of cross-contamination`,
		}, "\n")
	case constants.ModeDiabetes:
		return strings.Join([]string{
			"Also include these fields in your JSON response:",
			`"sugar_content": "High", // Low/Medium/High`,
			`"glycemic_risk": "High", // Low/Medium/High`,
			`"reason": "Contains dextrose, corn syrup" // Brief explanation`,
		}, "\n")
	}
	return ""
}

func buildFooter() string {
	return strings.Join([]string{
		"IMPORTANT:",
		"1. First identify what parts of the text are actual ingredients.",
		"2. Base your analysis ONLY on the ingredients you identified, not on any other text that might have been incorrectly extracted.",
		"3. Be accurate and realistic in your assessment.",
		"4. Return ONLY valid JSON with no additional text or explanation.",
	}, "\n")
}
