package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
)

// NormalizeAnalysisJSON coerces common model deviations into the response
// document shape without judging any value:
//   - drops null keys
//   - numeric strings / floats -> integers for scores, confidence, risk level
//   - bare numbers -> "N%" for percentage fields
//   - comma-separated strings -> arrays for list fields
//   - canonical casing for eatability and Low/Medium/High levels
//   - "yes"/"no" style strings -> booleans for cross_contamination
//   - optional keys whose type still does not fit are dropped
//
// Only health_score and breakdown are left for the caller to judge.
// It returns the re-encoded document and a list of the changes applied.
func NormalizeAnalysisJSON(raw []byte, logger *zap.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	changed := make([]string, 0, 8)
	note := func(what string) { changed = append(changed, what) }

	for k, v := range m {
		if v == nil {
			delete(m, k)
			note(k + "(null)")
		}
	}

	if v, ok := m["health_score"]; ok {
		if n, ok2 := coerceInt(v); ok2 {
			if f, isFloat := v.(float64); !isFloat || f != float64(n) {
				note("health_score(int)")
			}
			m["health_score"] = n
		}
	}

	if v, ok := m["eatability"].(string); ok {
		if e, ok2 := constants.CanonicalEatability(v); ok2 && string(e) != v {
			m["eatability"] = string(e)
			note("eatability(canonical)")
		}
	}

	if b, ok := m["breakdown"].(map[string]any); ok {
		for _, k := range []string{"sweeteners", "preservatives"} {
			if _, present := b[k]; !present {
				continue
			}
			if s, ok2 := coercePercent(b[k]); ok2 {
				if b[k] != s {
					note("breakdown." + k + "(percent)")
				}
				b[k] = s
			} else {
				delete(b, k)
				note("breakdown." + k + "(dropped)")
			}
		}
		if v, present := b["flagged"]; present {
			if list, ok2 := coerceStringList(v); ok2 {
				b["flagged"] = list
			} else {
				delete(b, "flagged")
				note("breakdown.flagged(dropped)")
			}
		}
	}

	sanitizeRows(m, "confidence_analysis", note, func(i int, row map[string]any) {
		dropNonStrings(row, fmt.Sprintf("confidence_analysis[%d]", i), note, "ingredient", "condition")
		for _, k := range []string{"confidence", "risk_level"} {
			if v, present := row[k]; present {
				if n, ok := coerceInt(v); ok {
					row[k] = n
				} else {
					delete(row, k)
					note(fmt.Sprintf("confidence_analysis[%d].%s(dropped)", i, k))
				}
			}
		}
	})

	sanitizeRows(m, "interactions", note, func(i int, row map[string]any) {
		dropNonStrings(row, fmt.Sprintf("interactions[%d]", i), note, "combo", "concern")
		if v, present := row["risk_increase"]; present {
			if s, ok := coercePercent(v); ok {
				row["risk_increase"] = s
			} else {
				delete(row, "risk_increase")
				note(fmt.Sprintf("interactions[%d].risk_increase(dropped)", i))
			}
		}
	})

	if v, ok := m["allergens"]; ok {
		if list, ok2 := coerceStringList(v); ok2 {
			m["allergens"] = list
		} else {
			delete(m, "allergens")
			note("allergens(dropped)")
		}
	}
	if v, ok := m["cross_contamination"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "likely", "possible", "may contain":
			m["cross_contamination"] = true
			note("cross_contamination(bool)")
		case "false", "no", "none", "unlikely":
			m["cross_contamination"] = false
			note("cross_contamination(bool)")
		}
	}
	if v, ok := m["cross_contamination"]; ok {
		if _, isBool := v.(bool); !isBool {
			delete(m, "cross_contamination")
			note("cross_contamination(dropped)")
		}
	}
	for _, k := range []string{"sugar_content", "glycemic_risk"} {
		if v, ok := m[k].(string); ok {
			if l, ok2 := constants.CanonicalLevel(v); ok2 && string(l) != v {
				m[k] = string(l)
				note(k + "(canonical)")
			}
		}
	}

	dropNonStrings(m, "", note, "eatability", "sugar_content", "glycemic_risk", "reason")

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Debug("llm.normalize.applied", zap.Strings("changes", changed))
	}
	return b, changed, nil
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t)), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimSuffix(s, "/100")
		s = strings.TrimSpace(s)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(math.Round(f)), true
		}
	}
	return 0, false
}

func coercePercent(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64) + "%", true
	case string:
		s := strings.TrimSpace(t)
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return s + "%", true
		}
		return s, true
	}
	return "", false
}

func coerceStringList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			} else if x != nil {
				out = append(out, fmt.Sprint(x))
			}
		}
		return out, true
	case string:
		out := make([]any, 0, 4)
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// sanitizeRows keeps m[key] only when it is a list, and keeps only the object
// rows of that list, passing each to fix.
func sanitizeRows(m map[string]any, key string, note func(string), fix func(int, map[string]any)) {
	v, present := m[key]
	if !present {
		return
	}
	items, ok := v.([]any)
	if !ok {
		delete(m, key)
		note(key + "(dropped)")
		return
	}
	rows := make([]any, 0, len(items))
	for _, it := range items {
		row, ok := it.(map[string]any)
		if !ok {
			note(key + "(row dropped)")
			continue
		}
		fix(len(rows), row)
		rows = append(rows, row)
	}
	m[key] = rows
}

func dropNonStrings(obj map[string]any, prefix string, note func(string), keys ...string) {
	for _, k := range keys {
		v, present := obj[k]
		if !present || v == nil {
			continue
		}
		if _, ok := v.(string); !ok {
			delete(obj, k)
			if prefix != "" {
				k = prefix + "." + k
			}
			note(k + "(dropped)")
		}
	}
}
