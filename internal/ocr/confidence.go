package ocr

import (
	"regexp"
	"strings"
)

var (
	reIngredientsHeader = regexp.MustCompile(`\b(ingredients?|contains|zutaten|ingr[eé]dients)\b`)
	reENumber           = regexp.MustCompile(`\be\s?\d{3}[a-z]?\b`)
	rePercent           = regexp.MustCompile(`\d+(\.\d+)?\s?%`)
)

func hasIngredientsHeader(s string) bool { return reIngredientsHeader.MatchString(s) }
func hasENumber(s string) bool           { return reENumber.MatchString(s) }
func hasPercent(s string) bool           { return rePercent.MatchString(s) }

// a comma separated list is the usual shape of an ingredient panel
func hasIngredientList(s string) bool { return strings.Count(s, ",") >= 3 }

// heuristicConfidence scores how much txt looks like an ingredient label.
func heuristicConfidence(txt string) float32 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if hasIngredientsHeader(txtL) {
		score += 0.25
	}
	if hasIngredientList(txtL) {
		score += 0.2
	}
	if hasENumber(txtL) {
		score += 0.1
	}
	if hasPercent(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence weighs the engine's score higher when it has one.
func blendConfidence(engine, heuristic float32) float32 {
	var conf float32
	if engine > 0 {
		conf = 0.7*engine + 0.3*heuristic
	} else {
		conf = heuristic
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
