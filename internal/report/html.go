package report

import (
	"html/template"
	"io"
)

var resultsTemplate = template.Must(template.New("results").Parse(`<section class="results">
  <header class="results-header">
    <h2>Analysis Results</h2>
    {{- if .ShowModeBadge}}
    <span class="mode-badge">{{.ModeTitle}}</span>
    {{- end}}
  </header>

  <div class="score">
    <div class="score-label"><span>Health Score</span><span>{{.Score.Value}}/100</span></div>
    <div class="meter"><div class="meter-fill band-{{.Score.Band}}" style="width: {{.Score.Width}}%; background-color: {{.Score.Color}}"></div></div>
    {{- if .Eatability.Band}}
    <span class="badge band-{{.Eatability.Band}}">{{.Eatability.Label}}</span>
    {{- end}}
  </div>

  <h3>Ingredient Breakdown</h3>
  <div class="breakdown">
    <div class="sweeteners"><p>Sweeteners</p><p class="value">{{.Breakdown.Sweeteners}}</p></div>
    <div class="preservatives"><p>Preservatives</p><p class="value">{{.Breakdown.Preservatives}}</p></div>
  </div>

  <h3>Flagged Ingredients</h3>
  <div class="chips">
    {{- range .Breakdown.Flagged}}
    <span class="chip flagged">{{.}}</span>
    {{- end}}
  </div>

  {{- with .Allergens}}
  <div class="panel allergens">
    <h3>Allergen Information</h3>
    <div class="chips">
      {{- range .Allergens}}
      <span class="chip allergen">{{.}}</span>
      {{- end}}
    </div>
    {{- if .CrossContamination}}
    <div class="warning">&#9888;&#65039; {{.Warning}}</div>
    {{- end}}
  </div>
  {{- end}}

  {{- with .Diabetes}}
  <div class="panel diabetes">
    <h3>Diabetes Information</h3>
    <div class="grid">
      <div><p>Sugar Content</p><p class="value{{if .SugarHigh}} high{{end}}">{{.SugarContent}}</p></div>
      <div><p>Glycemic Risk</p><p class="value{{if .GlycemicHigh}} high{{end}}">{{.GlycemicRisk}}</p></div>
    </div>
    {{- if .Reason}}
    <p class="reason">{{.Reason}}</p>
    {{- end}}
  </div>
  {{- end}}

  <h3>Detailed Risk Analysis</h3>
  <table class="risks">
    <thead><tr><th>Ingredient</th><th>Confidence</th><th>Risk Level</th><th>Condition</th></tr></thead>
    <tbody>
      {{- range .Risks}}
      <tr class="risk-{{.Band}}"><td>{{.Ingredient}}</td><td>{{.Confidence}}%</td><td>{{.RiskLevel}}/10</td><td>{{.Condition}}</td></tr>
      {{- end}}
    </tbody>
  </table>

  {{- if .Interactions}}
  <h3>Ingredient Interactions</h3>
  <div class="panel interactions">
    {{- range .Interactions}}
    <p><span class="combo">{{.Combo}}</span> &rarr; <span class="concern">{{.Sentence}}</span></p>
    {{- end}}
  </div>
  {{- end}}
</section>
`))

// RenderHTML writes v as an HTML fragment. All model text is escaped.
func RenderHTML(w io.Writer, v View) error {
	return resultsTemplate.Execute(w, v)
}
