package constants

import "strings"

// Eatability is the three-valued safety classification of a label.
type Eatability string

const (
	SafeForDaily   Eatability = "Safe for Daily"
	OccasionallyOK Eatability = "Occasionally OK"
	Avoid          Eatability = "Avoid"
)

var allEatability = []Eatability{SafeForDaily, OccasionallyOK, Avoid}

func EatabilityAsStringSlice() []string {
	result := make([]string, len(allEatability))
	for i, e := range allEatability {
		result[i] = string(e)
	}
	return result
}

// CanonicalEatability tolerates casing and common paraphrases from the model.
func CanonicalEatability(input string) (Eatability, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}
	for _, e := range allEatability {
		if normalized == strings.ToLower(string(e)) {
			return e, true
		}
	}

	synonyms := map[string]Eatability{
		"safe":                       SafeForDaily,
		"safe daily":                 SafeForDaily,
		"safe for daily use":         SafeForDaily,
		"safe for daily consumption": SafeForDaily,
		"daily":                      SafeForDaily,
		"occasionally":               OccasionallyOK,
		"occasional":                 OccasionallyOK,
		"occasionally okay":          OccasionallyOK,
		"in moderation":              OccasionallyOK,
		"moderate":                   OccasionallyOK,
		"avoid it":                   Avoid,
		"unsafe":                     Avoid,
		"not recommended":            Avoid,
	}
	if e, ok := synonyms[normalized]; ok {
		return e, true
	}
	return "", false
}

// Level is the Low/Medium/High scale used by the diabetes fields.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

func LevelsAsStringSlice() []string {
	return []string{string(LevelLow), string(LevelMedium), string(LevelHigh)}
}

func CanonicalLevel(input string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "low":
		return LevelLow, true
	case "medium", "moderate", "med":
		return LevelMedium, true
	case "high":
		return LevelHigh, true
	}
	return "", false
}
