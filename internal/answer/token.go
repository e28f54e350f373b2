package answer

import "unicode"

// EstimateTokens gives a rough token count for context budgeting.
// Hangul syllables tokenize to roughly one token each; other scripts
// average about 1.33 tokens per word. Exact tokenization is not
// required here.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var hangul, words int
	inWord := false
	for _, r := range text {
		switch {
		case r >= 0xAC00 && r <= 0xD7A3:
			hangul++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				words++
				inWord = true
			}
		}
	}
	tokens := hangul + int(float64(words)*1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
