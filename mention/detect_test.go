package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_CompetitiveScenario(t *testing.T) {
	text := "Acme is a great CRM. Unlike Globex, it has strong analytics."
	mentions := Detect(text, []string{"Acme", "Globex"})

	require.Len(t, mentions, 2)

	acme := mentions[0]
	assert.Equal(t, "Acme", acme.MatchedName)
	assert.Equal(t, TypeCompetitive, acme.Type)
	assert.Equal(t, []string{"Globex"}, acme.Competitors)
	assert.Equal(t, []string{"analytics"}, acme.Features)
	assert.Equal(t, 0, acme.Position)

	globex := mentions[1]
	assert.Equal(t, "Globex", globex.MatchedName)
	assert.Equal(t, TypeCompetitive, globex.Type)
	assert.Equal(t, []string{"Acme"}, globex.Competitors)
	assert.Equal(t, 1, globex.Position)
}

func TestDetect_Deterministic(t *testing.T) {
	text := "Acme leads the market. Globex supports automation. Acme has a good API."
	names := []string{"Acme", "Globex"}

	first := Detect(text, names)
	second := Detect(text, names)
	assert.Equal(t, first, second)
}

func TestDetect_EmptyInputs(t *testing.T) {
	assert.Empty(t, Detect("", []string{"Acme"}))
	assert.Empty(t, Detect("   ", []string{"Acme"}))
	assert.Empty(t, Detect("Nothing relevant here.", []string{"Acme"}))
	assert.Empty(t, Detect("Acme is mentioned.", nil))
}

func TestDetect_Classification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Type
	}{
		{
			name: "plain mention is direct",
			text: "Acme is widely used in retail.",
			want: TypeDirect,
		},
		{
			name: "feature marker yields feature",
			text: "Acme supports automation for most teams.",
			want: TypeFeature,
		},
		{
			name: "comparison marker yields competitive",
			text: "Acme versus the rest of the market.",
			want: TypeCompetitive,
		},
		{
			name: "comparison wins over feature framing",
			text: "Compared to others, Acme supports more integrations.",
			want: TypeCompetitive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := Detect(tt.text, []string{"Acme"})
			require.Len(t, mentions, 1)
			assert.Equal(t, tt.want, mentions[0].Type)
		})
	}
}

func TestDetect_CaseInsensitive(t *testing.T) {
	mentions := Detect("I prefer ACME for analytics.", []string{"Acme"})
	require.Len(t, mentions, 1)
	assert.Equal(t, "Acme", mentions[0].MatchedName, "matched name keeps the tracked spelling")
}

func TestDetect_ContextWindow(t *testing.T) {
	text := "First sentence. Acme appears here. Third sentence. Far away sentence."
	mentions := Detect(text, []string{"Acme"})
	require.Len(t, mentions, 1)

	assert.Equal(t, "Acme appears here.", mentions[0].Sentence)
	assert.Contains(t, mentions[0].Context, "First sentence.")
	assert.Contains(t, mentions[0].Context, "Third sentence.")
	assert.NotContains(t, mentions[0].Context, "Far away")
}

func TestDetect_AdjacentUnitsNotDeduplicated(t *testing.T) {
	text := "Acme is great. Acme is also fast."
	mentions := Detect(text, []string{"Acme"})
	assert.Len(t, mentions, 2, "each qualifying unit yields its own record")
}

func TestDetect_FeatureDeduplication(t *testing.T) {
	text := "Acme analytics beat their old analytics. Analytics matter."
	mentions := Detect(text, []string{"Acme"})
	require.Len(t, mentions, 1)
	assert.Equal(t, []string{"analytics"}, mentions[0].Features)
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("the api is good", "api"))
	assert.False(t, containsWord("rapid growth", "api"), "must not match inside words")
	assert.True(t, containsWord("api first", "api"))
	assert.True(t, containsWord("use the api", "api"))
	assert.True(t, containsWord("compared to globex", "compared to"))
}

func TestSplitUnits(t *testing.T) {
	units := splitUnits("One. Two! Three? Four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, units)

	assert.Empty(t, splitUnits(""))
	assert.Equal(t, []string{"No terminal punctuation"}, splitUnits("No terminal punctuation"))
}
