package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/DeafMist/news-credibility-rag/internal/models"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {},
	"and": {}, "of": {}, "on": {}, "is": {}, "was": {}, "with": {},
	"that": {}, "this": {}, "from": {}, "said": {}, "have": {}, "has": {},
}

// MatchPhrases returns the distinct phrases that occur in text, compared
// case-insensitively, in the order they appear in phrases.
func MatchPhrases(text string, phrases []string) []string {
	if text == "" || len(phrases) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	seen := make(map[string]struct{}, len(phrases))
	var hits []string
	for _, phrase := range phrases {
		p := strings.ToLower(phrase)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		if strings.Contains(lower, p) {
			seen[p] = struct{}{}
			hits = append(hits, phrase)
		}
	}
	return hits
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// SqueezeSpace collapses runs of whitespace into single spaces.
func SqueezeSpace(input string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// BuildChunkID hashes the chunk's origin and text to form deterministic IDs.
func BuildChunkID(url string, position int, text string) string {
	s := sha1.Sum([]byte(url + "|" + strconv.Itoa(position) + "|" + text))
	return hex.EncodeToString(s[:])
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	textWithoutURLs := RemoveURLs(text)

	sentenceEnd := strings.IndexAny(textWithoutURLs, ".!?")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(textWithoutURLs[:sentenceEnd])
	} else {
		firstSentence = textWithoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}

	return strings.Join(words, " ")
}

// TitleWords is the length of titles derived from content.
const TitleWords = 10

// NormalizeDocument trims the text fields of d and derives a missing title
// from its content.
func NormalizeDocument(d models.Document) models.Document {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	d.URL = strings.TrimSpace(d.URL)
	d.SourceName = strings.TrimSpace(d.SourceName)
	if d.Title == "" && d.Content != "" {
		d.Title = GenerateTitleFromText(d.Content, TitleWords)
	}
	return d
}
