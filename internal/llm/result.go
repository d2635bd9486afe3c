package llm

import (
	"encoding/json"

	"github.com/joseph-ayodele/labelscan/constants"
)

// AnalysisResult is the structured assessment of one label.
type AnalysisResult struct {
	HealthScore        int                  `json:"health_score"`
	Eatability         constants.Eatability `json:"eatability"`
	Breakdown          Breakdown            `json:"breakdown"`
	ConfidenceAnalysis []IngredientRisk     `json:"confidence_analysis"`
	Interactions       []Interaction        `json:"interactions"`

	// Extension carries the mode-specific fields; nil in general mode.
	Extension ModeExtension `json:"-"`
}

type Breakdown struct {
	Sweeteners    string   `json:"sweeteners"`
	Preservatives string   `json:"preservatives"`
	Flagged       []string `json:"flagged"`
}

type IngredientRisk struct {
	Ingredient string `json:"ingredient"`
	Confidence int    `json:"confidence"`
	RiskLevel  int    `json:"risk_level"`
	Condition  string `json:"condition"`
}

type Interaction struct {
	Combo        string `json:"combo"`
	RiskIncrease string `json:"risk_increase"`
	Concern      string `json:"concern"`
}

// ModeExtension is implemented by AllergenInfo and DiabetesInfo only.
type ModeExtension interface {
	Mode() constants.Mode
	isModeExtension()
}

type AllergenInfo struct {
	Allergens          []string
	CrossContamination bool
}

func (AllergenInfo) Mode() constants.Mode { return constants.ModeAllergen }
func (AllergenInfo) isModeExtension()     {}

type DiabetesInfo struct {
	SugarContent constants.Level
	GlycemicRisk constants.Level
	Reason       string
}

func (DiabetesInfo) Mode() constants.Mode { return constants.ModeDiabetes }
func (DiabetesInfo) isModeExtension()     {}

// Allergen returns the allergen fields when present.
func (r *AnalysisResult) Allergen() (AllergenInfo, bool) {
	if r == nil {
		return AllergenInfo{}, false
	}
	a, ok := r.Extension.(AllergenInfo)
	return a, ok
}

// Diabetes returns the diabetes fields when present.
func (r *AnalysisResult) Diabetes() (DiabetesInfo, bool) {
	if r == nil {
		return DiabetesInfo{}, false
	}
	d, ok := r.Extension.(DiabetesInfo)
	return d, ok
}

// IsZero reports whether r carries no fields at all.
func (r *AnalysisResult) IsZero() bool {
	if r == nil {
		return true
	}
	return r.HealthScore == 0 &&
		r.Eatability == "" &&
		r.Breakdown.Sweeteners == "" &&
		r.Breakdown.Preservatives == "" &&
		len(r.Breakdown.Flagged) == 0 &&
		len(r.ConfidenceAnalysis) == 0 &&
		len(r.Interactions) == 0 &&
		r.Extension == nil
}

// analysisWire is the flat response document exchanged with the model.
type analysisWire struct {
	HealthScore        int                  `json:"health_score"`
	Eatability         constants.Eatability `json:"eatability"`
	Breakdown          Breakdown            `json:"breakdown"`
	ConfidenceAnalysis []IngredientRisk     `json:"confidence_analysis"`
	Interactions       []Interaction        `json:"interactions"`

	Allergens          []string `json:"allergens,omitempty"`
	CrossContamination *bool    `json:"cross_contamination,omitempty"`

	SugarContent constants.Level `json:"sugar_content,omitempty"`
	GlycemicRisk constants.Level `json:"glycemic_risk,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// MarshalJSON flattens the extension into the response document shape.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	w := analysisWire{
		HealthScore:        r.HealthScore,
		Eatability:         r.Eatability,
		Breakdown:          r.Breakdown,
		ConfidenceAnalysis: r.ConfidenceAnalysis,
		Interactions:       r.Interactions,
	}
	switch ext := r.Extension.(type) {
	case AllergenInfo:
		w.Allergens = ext.Allergens
		cc := ext.CrossContamination
		w.CrossContamination = &cc
	case DiabetesInfo:
		w.SugarContent = ext.SugarContent
		w.GlycemicRisk = ext.GlycemicRisk
		w.Reason = ext.Reason
	}
	return json.Marshal(w)
}

// toResult builds the typed result, keeping only the extension that belongs to mode.
func (w analysisWire) toResult(mode constants.Mode) (*AnalysisResult, []string) {
	out := &AnalysisResult{
		HealthScore:        w.HealthScore,
		Eatability:         w.Eatability,
		Breakdown:          w.Breakdown,
		ConfidenceAnalysis: w.ConfidenceAnalysis,
		Interactions:       w.Interactions,
	}

	hasAllergen := w.Allergens != nil || w.CrossContamination != nil
	hasDiabetes := w.SugarContent != "" || w.GlycemicRisk != "" || w.Reason != ""

	var dropped []string
	switch mode {
	case constants.ModeAllergen:
		if hasAllergen {
			info := AllergenInfo{Allergens: w.Allergens}
			if w.CrossContamination != nil {
				info.CrossContamination = *w.CrossContamination
			}
			out.Extension = info
		}
		if hasDiabetes {
			dropped = append(dropped, "diabetes_fields")
		}
	case constants.ModeDiabetes:
		if hasDiabetes {
			out.Extension = DiabetesInfo{
				SugarContent: w.SugarContent,
				GlycemicRisk: w.GlycemicRisk,
				Reason:       w.Reason,
			}
		}
		if hasAllergen {
			dropped = append(dropped, "allergen_fields")
		}
	default:
		if hasAllergen {
			dropped = append(dropped, "allergen_fields")
		}
		if hasDiabetes {
			dropped = append(dropped, "diabetes_fields")
		}
	}
	return out, dropped
}
