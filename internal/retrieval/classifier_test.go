package retrieval

import (
	"fmt"
	"testing"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		query string
		want  []int
	}{
		{"good battery life", []int{3}},
		{"Decent sound", []int{3}},
		{"excellent build", []int{4, 5}},
		{"BEST purchase ever", []int{4, 5}},
		{"terrible support", []int{1, 2}},
		{"bad zipper", []int{1, 2}},
		{"good but not the best", []int{3}}, // first rule wins
		{"waterproof jacket", nil},
	}
	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := c.Ratings(tt.query); fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Ratings(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestKeywordClassifierReturnsCopy(t *testing.T) {
	c := NewKeywordClassifier()
	got := c.Ratings("great")
	got[0] = 1
	if again := c.Ratings("great"); again[0] != 4 {
		t.Errorf("rule mutated through result: %v", again)
	}
}
