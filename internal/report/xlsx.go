package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary      = "Summary"
	sheetIngredients  = "Ingredients"
	sheetInteractions = "Interactions"
	sheetAllergens    = "Allergens"
	sheetDiabetes     = "Diabetes"
)

var bandFills = map[string]string{
	BandGreen:  "C6EFCE",
	BandYellow: "FFEB9C",
	BandRed:    "FFC7CE",
	RiskLow:    "C6EFCE",
	RiskMedium: "FFEB9C",
	RiskHigh:   "FFC7CE",
}

// RenderXLSX returns v as an XLSX workbook: Summary, Ingredients and
// Interactions sheets, plus Allergens or Diabetes when the mode produced them.
func RenderXLSX(v View) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// NewFile starts with "Sheet1"; rename it rather than leave it empty.
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	fills := map[string]int{}
	for band, color := range bandFills {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}})
		if err != nil {
			return nil, err
		}
		fills[band] = id
	}

	w := &sheetWriter{f: f, header: header, fills: fills}
	w.summary(v)
	w.ingredients(v)
	w.interactions(v)
	if v.Allergens != nil {
		w.allergens(v.Allergens)
	}
	if v.Diabetes != nil {
		w.diabetes(v.Diabetes)
	}
	if w.err != nil {
		return nil, w.err
	}

	idx, _ := f.GetSheetIndex(sheetSummary)
	f.SetActiveSheet(idx)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first error so the sheet builders read linearly.
type sheetWriter struct {
	f      *excelize.File
	header int
	fills  map[string]int
	err    error
}

func (w *sheetWriter) sheet(name string) {
	if w.err != nil {
		return
	}
	if idx, _ := w.f.GetSheetIndex(name); idx == -1 {
		_, w.err = w.f.NewSheet(name)
	}
}

func (w *sheetWriter) set(sheet string, col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(sheet, cell, v)
}

func (w *sheetWriter) headers(sheet string, names ...string) {
	for i, h := range names {
		w.set(sheet, i+1, 1, h)
	}
	if w.err != nil || len(names) == 0 {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(names), 1)
	w.err = w.f.SetCellStyle(sheet, "A1", last, w.header)
}

func (w *sheetWriter) fill(sheet string, col, row int, band string) {
	id, ok := w.fills[band]
	if w.err != nil || !ok {
		return
	}
	cell, _ := excelize.CoordinatesToCellName(col, row)
	w.err = w.f.SetCellStyle(sheet, cell, cell, id)
}

func (w *sheetWriter) widths(sheet string, widths ...float64) {
	for i, width := range widths {
		if w.err != nil {
			return
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		w.err = w.f.SetColWidth(sheet, col, col, width)
	}
}

func (w *sheetWriter) summary(v View) {
	w.sheet(sheetSummary)
	w.headers(sheetSummary, "Field", "Value")
	rows := [][2]any{
		{"Mode", v.ModeTitle},
		{"Health Score", v.Score.Value},
		{"Eatability", v.Eatability.Label},
		{"Sweeteners", v.Breakdown.Sweeteners},
		{"Preservatives", v.Breakdown.Preservatives},
		{"Flagged Ingredients", strings.Join(v.Breakdown.Flagged, ", ")},
	}
	for i, r := range rows {
		w.set(sheetSummary, 1, i+2, r[0])
		w.set(sheetSummary, 2, i+2, r[1])
	}
	w.fill(sheetSummary, 2, 3, v.Score.Band)
	w.fill(sheetSummary, 2, 4, v.Eatability.Band)
	w.widths(sheetSummary, 22, 48)
}

func (w *sheetWriter) ingredients(v View) {
	w.sheet(sheetIngredients)
	w.headers(sheetIngredients, "Ingredient", "Confidence (%)", "Risk Level (1-10)", "Condition")
	for i, r := range v.Risks {
		row := i + 2
		w.set(sheetIngredients, 1, row, r.Ingredient)
		w.set(sheetIngredients, 2, row, r.Confidence)
		w.set(sheetIngredients, 3, row, r.RiskLevel)
		w.set(sheetIngredients, 4, row, r.Condition)
		w.fill(sheetIngredients, 3, row, r.Band)
	}
	w.widths(sheetIngredients, 28, 16, 18, 40)
}

func (w *sheetWriter) interactions(v View) {
	w.sheet(sheetInteractions)
	w.headers(sheetInteractions, "Combination", "Concern", "Risk Increase", "Summary")
	for i, r := range v.Interactions {
		row := i + 2
		w.set(sheetInteractions, 1, row, r.Combo)
		w.set(sheetInteractions, 2, row, r.Concern)
		w.set(sheetInteractions, 3, row, r.RiskIncrease)
		w.set(sheetInteractions, 4, row, r.Combo+" → "+r.Sentence)
	}
	w.widths(sheetInteractions, 28, 22, 14, 60)
}

func (w *sheetWriter) allergens(p *AllergenPanel) {
	w.sheet(sheetAllergens)
	w.headers(sheetAllergens, "Allergen")
	for i, a := range p.Allergens {
		w.set(sheetAllergens, 1, i+2, a)
	}
	row := len(p.Allergens) + 3
	w.set(sheetAllergens, 1, row, "Cross-contamination risk")
	w.set(sheetAllergens, 2, row, p.CrossContamination)
	w.widths(sheetAllergens, 28, 10)
}

func (w *sheetWriter) diabetes(p *DiabetesPanel) {
	w.sheet(sheetDiabetes)
	w.headers(sheetDiabetes, "Field", "Value")
	w.set(sheetDiabetes, 1, 2, "Sugar Content")
	w.set(sheetDiabetes, 2, 2, string(p.SugarContent))
	w.set(sheetDiabetes, 1, 3, "Glycemic Risk")
	w.set(sheetDiabetes, 2, 3, string(p.GlycemicRisk))
	w.set(sheetDiabetes, 1, 4, "Reason")
	w.set(sheetDiabetes, 2, 4, p.Reason)
	if p.SugarHigh {
		w.fill(sheetDiabetes, 2, 2, RiskHigh)
	}
	if p.GlycemicHigh {
		w.fill(sheetDiabetes, 2, 3, RiskHigh)
	}
	w.widths(sheetDiabetes, 18, 60)
}
