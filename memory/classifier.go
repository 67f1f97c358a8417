package memory

import (
	"strings"

	"github.com/BaSui01/memflow/types"
)

// Classifier assigns new interaction content to a long-term memory
// scope and adjusts its importance. It is a pluggable strategy so the
// keyword heuristic can be swapped for a rule table or learned model
// without touching the interceptor.
type Classifier interface {
	// Classify returns MemorySemantic or MemoryEpisodic for content.
	Classify(content string) types.MemoryScope

	// Importance returns the adjusted importance for content given the
	// caller's base score, clamped to [0, 1].
	Importance(content string, base float64) float64
}

// KeywordClassifier is the default heuristic: content mentioning
// reported dialogue is episodic, everything else semantic; content
// mentioning importance markers gets a fixed boost. Plain substring
// matching, no tokenization.
type KeywordClassifier struct {
	episodicMarkers   []string
	importanceMarkers []string
	boost             float64
}

// NewKeywordClassifier returns the stock classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		episodicMarkers: []string{
			"我说", "用户说", "对话", "讨论",
			"said", "discussed", "talked about", "told me",
		},
		importanceMarkers: []string{
			"重要", "关键", "记住",
			"important", "remember", "key point",
		},
		boost: 0.3,
	}
}

func (c *KeywordClassifier) Classify(content string) types.MemoryScope {
	lower := strings.ToLower(content)
	for _, marker := range c.episodicMarkers {
		if strings.Contains(lower, marker) {
			return types.MemoryEpisodic
		}
	}
	return types.MemorySemantic
}

func (c *KeywordClassifier) Importance(content string, base float64) float64 {
	lower := strings.ToLower(content)
	score := base
	for _, marker := range c.importanceMarkers {
		if strings.Contains(lower, marker) {
			score += c.boost
			break
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

var _ Classifier = (*KeywordClassifier)(nil)
