package mention

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/provider"
)

const sentimentSystemPrompt = `You are a sentiment classifier for brand mentions.
Given a text snippet, respond with ONLY a JSON object, no prose:
{"score": <number between -1.0 and 1.0>, "confidence": <number between 0.0 and 1.0>, "keywords": [<sentiment-bearing words from the text>]}`

// Scorer classifies mention contexts. The LLM path is primary; the
// lexicon path covers LLM outages and doubles as a fast deterministic
// alternative. Score never returns an error: any primary-path failure
// degrades to the fallback so scoring cannot block the pipeline.
type Scorer struct {
	client provider.Client // nil = lexicon only
	logger *zap.SugaredLogger
}

// NewScorer creates a scorer. Pass a nil client for lexicon-only scoring.
func NewScorer(client provider.Client, logger *zap.SugaredLogger) *Scorer {
	return &Scorer{client: client, logger: logger}
}

// Score classifies the sentiment of a mention's context
func (s *Scorer) Score(ctx context.Context, contextText string) Sentiment {
	if s.client == nil {
		return LexiconScore(contextText)
	}

	sentiment, err := s.scoreLLM(ctx, contextText)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("LLM sentiment scoring failed, using lexicon fallback",
				"error", err,
			)
		}
		return LexiconScore(contextText)
	}
	return sentiment
}

func (s *Scorer) scoreLLM(ctx context.Context, contextText string) (Sentiment, error) {
	resp, err := s.client.Complete(ctx, provider.Request{
		SystemPrompt: sentimentSystemPrompt,
		UserPrompt:   contextText,
	})
	if err != nil {
		return Sentiment{}, err
	}

	var parsed struct {
		Score      float64  `json:"score"`
		Confidence float64  `json:"confidence"`
		Keywords   []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return Sentiment{}, err
	}

	score := clamp(parsed.Score, -1, 1)
	return Sentiment{
		Label:      labelForScore(score),
		Score:      score,
		Confidence: clamp(parsed.Confidence, 0, 1),
		Keywords:   parsed.Keywords,
	}, nil
}

// LexiconScore is the deterministic fallback: count positive and negative
// word occurrences, score = (pos - neg) / (pos + neg). Zero matches yields
// neutral with mid-range confidence; more signal words raise confidence.
func LexiconScore(text string) Sentiment {
	tokens := tokenize(text)

	var positive, negative int
	var keywords []string
	for _, token := range tokens {
		if wordIn(token, positiveWords) {
			positive++
			keywords = appendUnique(keywords, token)
		} else if wordIn(token, negativeWords) {
			negative++
			keywords = appendUnique(keywords, token)
		}
	}

	total := positive + negative
	if total == 0 {
		return Sentiment{Label: LabelNeutral, Score: 0, Confidence: 0.5}
	}

	score := clamp(float64(positive-negative)/float64(total), -1, 1)
	confidence := 0.5 + 0.1*float64(total)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return Sentiment{
		Label:      labelForScore(score),
		Score:      score,
		Confidence: confidence,
		Keywords:   keywords,
	}
}

// tokenize lowercases and splits on non-word characters
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func wordIn(token string, words []string) bool {
	for _, w := range words {
		if token == w {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// extractJSON pulls the first {...} object out of a model response that
// may wrap it in prose or code fences
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
