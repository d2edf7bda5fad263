package mention

// Type classifies how a tracked name appears in its context
type Type string

const (
	// TypeDirect is a plain mention with no comparison or feature framing
	TypeDirect Type = "direct"
	// TypeFeature is a mention framed around product capabilities
	TypeFeature Type = "feature"
	// TypeCompetitive is a mention framed as a comparison against another product
	TypeCompetitive Type = "competitive"
)

// Mention is one detected occurrence of a tracked name inside a response.
// Immutable once created.
type Mention struct {
	MatchedName string   `json:"matched_name"`
	Type        Type     `json:"type"`
	Sentence    string   `json:"sentence"`
	Context     string   `json:"context"`
	Competitors []string `json:"competitors"`
	Features    []string `json:"features"`
	Position    int      `json:"position"`
}

// Sentiment is the scored sentiment of a mention's context
type Sentiment struct {
	Label      string   `json:"label"` // positive, neutral, or negative
	Score      float64  `json:"score"` // -1.0 .. 1.0
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// labelForScore applies the documented thresholds. Labels are always
// derived from the score so the two can never disagree.
func labelForScore(score float64) string {
	switch {
	case score > 0.3:
		return LabelPositive
	case score < -0.3:
		return LabelNegative
	default:
		return LabelNeutral
	}
}
