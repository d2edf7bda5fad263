package mention

// Fixed vocabularies for detection and fallback scoring. These are
// deliberately small and curated; the LLM path handles nuance, the
// lexicon path only needs to be deterministic and roughly right.

// comparisonMarkers in a context window classify the mention as competitive
var comparisonMarkers = []string{
	"versus",
	"vs",
	"compared to",
	"comparison",
	"alternative to",
	"alternatives",
	"unlike",
	"better than",
	"worse than",
	"instead of",
	"competitor",
}

// featureMarkers classify the mention as feature-framed
var featureMarkers = []string{
	"feature",
	"features",
	"capability",
	"capabilities",
	"supports",
	"functionality",
	"offers",
	"integrates",
}

// featureVocabulary is the fixed set of product aspects extracted from
// mention contexts
var featureVocabulary = []string{
	"integration",
	"analytics",
	"api",
	"automation",
	"reporting",
	"dashboard",
	"workflow",
	"pricing",
	"security",
	"scalability",
	"support",
	"onboarding",
	"customization",
}

var positiveWords = []string{
	"great", "excellent", "best", "strong", "leading", "powerful",
	"reliable", "intuitive", "fast", "robust", "seamless", "outstanding",
	"innovative", "flexible", "easy", "popular", "impressive", "superior",
	"recommended", "love", "good", "top",
}

var negativeWords = []string{
	"bad", "poor", "worst", "weak", "slow", "unreliable",
	"clunky", "confusing", "expensive", "limited", "outdated", "buggy",
	"frustrating", "difficult", "lacking", "disappointing", "inferior",
	"complicated", "hate", "terrible",
}
