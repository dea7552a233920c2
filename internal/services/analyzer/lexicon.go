package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"postflow/internal/queue"
	"postflow/internal/stage"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

const (
	positiveThreshold   = 20
	negativeThreshold   = -20
	intensifierWeight   = 1.5
	neutralWordWeight   = 0.5
	modifierWindow      = 2
	minKeywordLength    = 4
	maxKeywords         = 8
	maxSummaryRunes     = 140
	lexiconProviderName = "lexicon"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	handlePattern  = regexp.MustCompile(`[@#]\w+`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

var positiveWords = wordSet(
	"amazing", "awesome", "brilliant", "excellent", "fantastic", "great", "incredible",
	"outstanding", "perfect", "wonderful", "love", "like", "enjoy", "happy", "excited",
	"thrilled", "delighted", "pleased", "satisfied", "impressed", "remarkable", "superb",
	"terrific", "fabulous", "marvelous", "spectacular", "phenomenal", "magnificent",
	"beautiful", "gorgeous", "stunning", "lovely", "charming", "elegant", "success",
	"achievement", "victory", "win", "triumph", "breakthrough", "progress", "growth",
	"opportunity", "advantage", "benefit", "value", "quality", "premium", "best",
	"top", "leading", "innovative", "creative", "inspiring", "motivating", "uplifting",
)

var negativeWords = wordSet(
	"awful", "terrible", "horrible", "disgusting", "hate", "dislike", "angry", "frustrated",
	"disappointed", "sad", "upset", "annoyed", "irritated", "furious", "outraged",
	"disgusted", "appalled", "shocked", "devastated", "heartbroken", "miserable",
	"depressed", "hopeless", "worthless", "useless", "pointless", "meaningless",
	"failure", "disaster", "catastrophe", "nightmare", "crisis", "problem", "issue",
	"trouble", "difficulty", "challenge", "obstacle", "barrier", "setback", "loss",
	"damage", "harm", "hurt", "pain", "suffering", "struggle", "fight", "battle",
	"conflict", "argument", "dispute", "disagreement", "criticism", "complaint",
	"fake", "fraud", "scam", "lie", "dishonest", "corrupt", "wrong", "bad", "poor",
	"worst", "inferior", "mediocre", "disappointing", "unsatisfactory",
)

var neutralWords = wordSet(
	"okay", "fine", "average", "normal", "standard", "typical", "regular", "common",
	"ordinary", "basic", "simple", "plain", "neutral", "balanced", "moderate",
	"reasonable", "acceptable", "adequate", "sufficient", "decent", "fair",
)

var intensifiers = wordSet(
	"very", "extremely", "incredibly", "absolutely", "completely", "totally", "really",
	"quite", "rather", "pretty", "fairly", "somewhat", "highly", "deeply", "truly",
	"genuinely", "seriously", "definitely", "certainly", "surely", "undoubtedly",
)

var negators = wordSet(
	"not", "no", "never", "nothing", "nobody", "nowhere", "neither", "nor",
	"hardly", "barely", "scarcely", "seldom", "rarely", "without", "except",
)

var stopWords = wordSet(
	"this", "that", "with", "from", "have", "your", "about", "there", "their", "they",
	"them", "what", "when", "where", "which", "while", "will", "would", "could", "should",
	"into", "just", "more", "most", "some", "such", "than", "then", "these", "those",
	"been", "being", "were", "here", "over", "also", "only", "very", "really", "today",
)

// Lexicon is a deterministic word-list analyzer. It never fails and needs no
// network access.
type Lexicon struct {
	maxHashtags int
}

// NewLexicon constructs a lexicon analyzer suggesting at most maxHashtags tags.
func NewLexicon(maxHashtags int) *Lexicon {
	if maxHashtags <= 0 {
		maxHashtags = 5
	}
	return &Lexicon{maxHashtags: maxHashtags}
}

// Analyze scores sentiment on a -100..100 scale and extracts keywords.
func (l *Lexicon) Analyze(ctx context.Context, content stage.Content) (queue.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return queue.Analysis{}, err
	}
	words := tokenize(content.Text)
	score := sentimentScore(words)
	keywords := extractKeywords(words)
	return queue.Analysis{
		Sentiment:         labelFor(score),
		SentimentScore:    score,
		Keywords:          keywords,
		SuggestedHashtags: suggestHashtags(keywords, l.maxHashtags),
		Summary:           summarize(content.Text),
		Provider:          lexiconProviderName,
	}, nil
}

// HealthCheck always reports ready.
func (l *Lexicon) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("analyzer")
}

func tokenize(text string) []string {
	cleaned := urlPattern.ReplaceAllString(text, " ")
	cleaned = handlePattern.ReplaceAllString(cleaned, " ")
	cleaned = nonWordPattern.ReplaceAllString(cleaned, " ")
	return strings.Fields(strings.ToLower(cleaned))
}

// sentimentScore weighs lexicon hits, flipping polarity when a negator and
// amplifying when an intensifier appears within the two preceding words.
func sentimentScore(words []string) int {
	var positive, negative, neutral float64
	for i, word := range words {
		negated := precededBy(words, i, negators)
		weight := 1.0
		if precededBy(words, i, intensifiers) {
			weight = intensifierWeight
		}
		switch {
		case contains(positiveWords, word):
			if negated {
				negative += weight
			} else {
				positive += weight
			}
		case contains(negativeWords, word):
			if negated {
				positive += weight
			} else {
				negative += weight
			}
		case contains(neutralWords, word):
			neutral += neutralWordWeight
		}
	}
	total := positive + negative + neutral
	if total == 0 {
		return 0
	}
	return int((positive - negative) / max(total, 1) * 100)
}

func labelFor(score int) string {
	switch {
	case score > positiveThreshold:
		return SentimentPositive
	case score < negativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func precededBy(words []string, index int, set map[string]struct{}) bool {
	for i := max(0, index-modifierWindow); i < index; i++ {
		if contains(set, words[i]) {
			return true
		}
	}
	return false
}

func contains(set map[string]struct{}, word string) bool {
	_, ok := set[word]
	return ok
}

func extractKeywords(words []string) []string {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i, word := range words {
		if len([]rune(word)) < minKeywordLength || contains(stopWords, word) || contains(negators, word) || contains(intensifiers, word) {
			continue
		}
		if _, seen := first[word]; !seen {
			first[word] = i
		}
		counts[word]++
	}
	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return first[keywords[i]] < first[keywords[j]]
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func summarize(text string) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	if idx := strings.IndexAny(trimmed, ".!?"); idx > 0 {
		trimmed = trimmed[:idx+1]
	}
	runes := []rune(trimmed)
	if len(runes) > maxSummaryRunes {
		return strings.TrimSpace(string(runes[:maxSummaryRunes-3])) + "..."
	}
	return trimmed
}
