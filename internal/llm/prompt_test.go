package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/labelscan/constants"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	for _, mode := range constants.AllModes() {
		assert.Equal(t, BuildPrompt("Sugar, Salt", mode), BuildPrompt("Sugar, Salt", mode), mode)
	}
}

func TestBuildPromptEmbedsTextVerbatim(t *testing.T) {
	text := "Ingredients: Water, \"Natural\" Flavour, E211"
	p := BuildPrompt(text, constants.ModeGeneral)
	assert.Contains(t, p, "\""+text+"\"")
}

func TestModePromptsExtendGeneral(t *testing.T) {
	general := BuildPrompt("Sugar", constants.ModeGeneral)
	core := strings.TrimSuffix(general, buildFooter())
	require.NotEqual(t, general, core)

	allergen := BuildPrompt("Sugar", constants.ModeAllergen)
	assert.True(t, strings.HasPrefix(allergen, core))
	assert.Contains(t, allergen, `"allergens"`)
	assert.Contains(t, allergen, `"cross_contamination"`)
	assert.NotContains(t, allergen, `"sugar_content"`)

	diabetes := BuildPrompt("Sugar", constants.ModeDiabetes)
	assert.True(t, strings.HasPrefix(diabetes, core))
	assert.Contains(t, diabetes, `"sugar_content"`)
	assert.Contains(t, diabetes, `"glycemic_risk"`)
	assert.Contains(t, diabetes, `"reason"`)

	assert.NotContains(t, general, "Also include these fields")
	for _, p := range []string{general, allergen, diabetes} {
		assert.True(t, strings.HasSuffix(p, buildFooter()))
	}
}

func TestPromptNamesEveryEatabilityLabel(t *testing.T) {
	p := BuildPrompt("x", constants.ModeGeneral)
	for _, e := range constants.EatabilityAsStringSlice() {
		assert.Contains(t, p, e)
	}
}
