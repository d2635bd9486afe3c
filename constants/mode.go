package constants

import (
	"strings"
)

// Mode selects which extra fields the analysis asks for.
type Mode string

const (
	ModeGeneral  Mode = "general"
	ModeAllergen Mode = "allergen"
	ModeDiabetes Mode = "diabetes"
)

var allModes = []Mode{
	ModeGeneral,
	ModeAllergen,
	ModeDiabetes,
}

// AllModes returns the modes in display order.
func AllModes() []Mode {
	out := make([]Mode, len(allModes))
	copy(out, allModes)
	return out
}

func ModesAsStringSlice() []string {
	result := make([]string, len(allModes))
	for i, m := range allModes {
		result[i] = string(m)
	}
	return result
}

func (m Mode) Valid() bool {
	switch m {
	case ModeGeneral, ModeAllergen, ModeDiabetes:
		return true
	}
	return false
}

func (m Mode) Title() string {
	switch m {
	case ModeAllergen:
		return "Allergen Detective"
	case ModeDiabetes:
		return "Diabetes-Safe Scanner"
	default:
		return "General Analysis"
	}
}

func (m Mode) Description() string {
	switch m {
	case ModeAllergen:
		return "Focus on identifying allergens and cross-contamination risks"
	case ModeDiabetes:
		return "Focus on sugar content and glycemic impact"
	default:
		return "Analyze all ingredients for health impact"
	}
}

// ParseMode maps user input onto a Mode. Empty input yields ModeGeneral.
func ParseMode(input string) (Mode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return ModeGeneral, true
	}

	synonyms := map[string]Mode{
		"standard":              ModeGeneral,
		"default":               ModeGeneral,
		"general analysis":      ModeGeneral,
		"allergy":               ModeAllergen,
		"allergens":             ModeAllergen,
		"allergen detective":    ModeAllergen,
		"diabetic":              ModeDiabetes,
		"sugar":                 ModeDiabetes,
		"diabetes-safe scanner": ModeDiabetes,
	}
	if m, ok := synonyms[normalized]; ok {
		return m, true
	}

	for _, m := range allModes {
		if normalized == string(m) {
			return m, true
		}
	}
	return ModeGeneral, false
}
