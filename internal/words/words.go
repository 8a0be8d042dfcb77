// Package words generates random passages for race rounds from a list of
// common English words.
package words

import (
	"math/rand"
	"strings"
)

var commonWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "it",
	"for", "not", "on", "with", "he", "as", "you", "do", "at", "this",
	"but", "his", "by", "from", "they", "we", "say", "her", "she", "or",
	"an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"when", "make", "can", "like", "time", "no", "just", "him", "know",
	"take", "people", "into", "year", "your", "good", "some", "could",
	"them", "see", "other", "than", "then", "now", "look", "only", "come",
	"its", "over", "think", "also", "back", "after", "use", "two", "how",
	"our", "work", "first", "well", "way", "even", "new", "want",
	"because", "any", "these", "give", "day", "most", "us", "is", "was",
	"are", "had", "word", "said", "each", "many", "write", "been", "call",
	"find", "long", "down", "side", "made", "may", "part", "sound",
	"place", "where", "help", "through", "much", "before", "line",
	"right", "too", "mean", "old", "same", "tell", "does", "set", "three",
	"small", "end", "put", "home", "read", "hand", "port", "large",
	"spell", "add", "land", "here", "must", "big", "high", "such",
	"follow", "act", "why", "ask", "men", "change", "went", "light",
	"kind", "off", "need", "house", "picture", "try", "again", "animal",
	"point", "mother", "world", "near", "build", "self", "earth",
	"father", "head", "stand", "own", "page", "should", "country",
	"found", "answer", "school", "grow", "study", "still", "learn",
	"plant", "cover", "food", "sun", "four", "between", "state", "keep",
	"eye", "never", "last", "let", "thought", "city", "tree", "cross",
}

// Generate returns a passage of n random common words joined by single
// spaces. The same word never appears twice in a row. A non-positive n
// yields an empty string.
func Generate(n int) string {
	if n <= 0 {
		return ""
	}

	picked := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var word string
		for {
			word = commonWords[rand.Intn(len(commonWords))]
			if i == 0 || word != picked[i-1] {
				break
			}
		}
		picked = append(picked, word)
	}
	return strings.Join(picked, " ")
}

// CountIn returns how many space-separated words a passage contains.
// Useful for regenerating a restart text of the same length.
func CountIn(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}
