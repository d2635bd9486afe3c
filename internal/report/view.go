package report

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

// Bands used for scores, risks and badges. The HTML renderer maps them to
// CSS classes; the workbook maps them to fills.
const (
	BandGreen  = "green"
	BandYellow = "yellow"
	BandRed    = "red"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

const crossContaminationWarning = "May contain traces of other allergens (cross-contamination risk)"

// View is a presentation-neutral rendering of one analysis result.
type View struct {
	Mode          constants.Mode `json:"mode"`
	ModeTitle     string         `json:"mode_title"`
	ShowModeBadge bool           `json:"show_mode_badge"`

	Score        Score            `json:"score"`
	Eatability   Badge            `json:"eatability"`
	Breakdown    llm.Breakdown    `json:"breakdown"`
	Risks        []RiskRow        `json:"risks"`
	Interactions []InteractionRow `json:"interactions"`

	Allergens *AllergenPanel `json:"allergens,omitempty"`
	Diabetes  *DiabetesPanel `json:"diabetes,omitempty"`
}

type Score struct {
	Value int    `json:"value"`
	Width int    `json:"width"` // meter fill, clamped to 0..100
	Band  string `json:"band"`
	Color string `json:"color"` // hex, blended from red through yellow to green
}

type Badge struct {
	Label string `json:"label"`
	Band  string `json:"band"`
}

type RiskRow struct {
	Ingredient string `json:"ingredient"`
	Confidence int    `json:"confidence"`
	RiskLevel  int    `json:"risk_level"`
	Condition  string `json:"condition"`
	Band       string `json:"band"`
}

type InteractionRow struct {
	Combo        string `json:"combo"`
	Concern      string `json:"concern"`
	RiskIncrease string `json:"risk_increase"`
	Sentence     string `json:"sentence"`
}

type AllergenPanel struct {
	Allergens          []string `json:"allergens"`
	CrossContamination bool     `json:"cross_contamination"`
	Warning            string   `json:"warning,omitempty"`
}

type DiabetesPanel struct {
	SugarContent constants.Level `json:"sugar_content"`
	GlycemicRisk constants.Level `json:"glycemic_risk"`
	Reason       string          `json:"reason,omitempty"`
	SugarHigh    bool            `json:"sugar_high"`
	GlycemicHigh bool            `json:"glycemic_high"`
}

var (
	scoreRed    = mustHex("#ef4444")
	scoreYellow = mustHex("#eab308")
	scoreGreen  = mustHex("#22c55e")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// BuildView turns result into a view for mode. Optional fields the model
// left out render as empty sections.
func BuildView(result *llm.AnalysisResult, mode constants.Mode) View {
	v := View{
		Mode:          mode,
		ModeTitle:     mode.Title(),
		ShowModeBadge: mode != constants.ModeGeneral,
	}
	if result == nil {
		return v
	}

	v.Score = buildScore(result.HealthScore)
	v.Eatability = Badge{Label: string(result.Eatability), Band: eatabilityBand(result.Eatability)}
	v.Breakdown = result.Breakdown

	for _, r := range result.ConfidenceAnalysis {
		v.Risks = append(v.Risks, RiskRow{
			Ingredient: r.Ingredient,
			Confidence: r.Confidence,
			RiskLevel:  r.RiskLevel,
			Condition:  r.Condition,
			Band:       RiskBand(r.RiskLevel),
		})
	}
	for _, i := range result.Interactions {
		v.Interactions = append(v.Interactions, InteractionRow{
			Combo:        i.Combo,
			Concern:      i.Concern,
			RiskIncrease: i.RiskIncrease,
			Sentence:     fmt.Sprintf("Increases %s risk by %s", i.Concern, i.RiskIncrease),
		})
	}

	if a, ok := result.Allergen(); ok {
		p := &AllergenPanel{Allergens: a.Allergens, CrossContamination: a.CrossContamination}
		if a.CrossContamination {
			p.Warning = crossContaminationWarning
		}
		v.Allergens = p
	}
	if d, ok := result.Diabetes(); ok && d.SugarContent != "" {
		v.Diabetes = &DiabetesPanel{
			SugarContent: d.SugarContent,
			GlycemicRisk: d.GlycemicRisk,
			Reason:       d.Reason,
			SugarHigh:    d.SugarContent == constants.LevelHigh,
			GlycemicHigh: d.GlycemicRisk == constants.LevelHigh,
		}
	}
	return v
}

func buildScore(value int) Score {
	width := value
	if width < 0 {
		width = 0
	}
	if width > 100 {
		width = 100
	}
	return Score{Value: value, Width: width, Band: ScoreBand(value), Color: ScoreColor(width)}
}

// ScoreBand buckets a health score: >=80 green, >=50 yellow, else red.
func ScoreBand(score int) string {
	switch {
	case score >= 80:
		return BandGreen
	case score >= 50:
		return BandYellow
	default:
		return BandRed
	}
}

// ScoreColor blends in Lab space so mid scores stay readable.
func ScoreColor(score int) string {
	t := float64(score) / 100
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	if t < 0.5 {
		return scoreRed.BlendLab(scoreYellow, t*2).Clamped().Hex()
	}
	return scoreYellow.BlendLab(scoreGreen, (t-0.5)*2).Clamped().Hex()
}

// RiskBand buckets a 1-10 risk level: >=7 high, >=4 medium, else low.
func RiskBand(level int) string {
	switch {
	case level >= 7:
		return RiskHigh
	case level >= 4:
		return RiskMedium
	default:
		return RiskLow
	}
}

func eatabilityBand(e constants.Eatability) string {
	switch e {
	case constants.SafeForDaily:
		return BandGreen
	case constants.OccasionallyOK:
		return BandYellow
	case constants.Avoid:
		return BandRed
	default:
		return ""
	}
}
