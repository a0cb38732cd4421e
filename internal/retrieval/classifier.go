package retrieval

import "strings"

// RatingClassifier maps a free-text review query to the ratings it implies.
// An empty result means no filter.
type RatingClassifier interface {
	Ratings(query string) []int
}

// RatingRule selects Ratings when the query contains any of Keywords.
type RatingRule struct {
	Keywords []string
	Ratings  []int
}

// KeywordClassifier applies rules in order; the first matching rule wins.
// Keywords match as lower-case substrings, so "goodness" counts as "good".
type KeywordClassifier struct {
	Rules []RatingRule
}

// DefaultRatingRules is the built-in sentiment heuristic.
func DefaultRatingRules() []RatingRule {
	return []RatingRule{
		{Keywords: []string{"good", "average", "decent"}, Ratings: []int{3}},
		{Keywords: []string{"great", "excellent", "awesome", "best"}, Ratings: []int{4, 5}},
		{Keywords: []string{"poor", "bad", "terrible", "worst"}, Ratings: []int{1, 2}},
	}
}

// NewKeywordClassifier returns a classifier with the default rules.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Rules: DefaultRatingRules()}
}

// Ratings implements RatingClassifier.
func (c *KeywordClassifier) Ratings(query string) []int {
	q := strings.ToLower(query)
	for _, r := range c.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(q, kw) {
				return append([]int(nil), r.Ratings...)
			}
		}
	}
	return nil
}

// NoFilter never restricts ratings.
type NoFilter struct{}

// Ratings implements RatingClassifier.
func (NoFilter) Ratings(string) []int { return nil }
