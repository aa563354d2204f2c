package headlines

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sections are the NYT Top Stories sections a tile may ask for.
var Sections = []string{
	"arts", "automobiles", "books", "business", "fashion", "food", "health",
	"home", "insider", "magazine", "movies", "nyregion", "obituaries", "opinion",
	"politics", "realestate", "science", "sports", "sundayreview", "technology",
	"theater", "t-magazine", "travel", "upshot", "us", "world",
}

func validSection(s string) bool { return slices.Contains(Sections, s) }

// SectionName turns a section slug into its display name: "t-magazine" becomes
// "T Magazine".
func SectionName(section string) string {
	words := strings.Split(section, "-")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
