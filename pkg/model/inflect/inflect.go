// Package inflect holds the string transforms used to derive paths, keys and
// type names from declarations.
package inflect

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
)

// Inflector is injected into a schema to derive collection paths, envelope
// keys, foreign keys and target type names. Implementations must be pure.
type Inflector interface {
	Pluralize(word string) string
	Singularize(word string) string
	Underscore(word string) string
	Camelize(word string) string
}

// Default is backed by jinzhu/inflection for English plural rules.
var Default Inflector = english{}

type english struct{}

func (english) Pluralize(word string) string   { return inflection.Plural(word) }
func (english) Singularize(word string) string { return inflection.Singular(word) }
func (english) Underscore(word string) string  { return Underscore(word) }
func (english) Camelize(word string) string    { return Camelize(word) }

// Underscore lower cases the words of s and joins them with underscores, so
// that "BlogPost" becomes "blog_post" and "UserID" becomes "user_id".
func Underscore(s string) string {
	parts := words(s)
	for i, w := range parts {
		parts[i] = strings.ToLower(w)
	}
	return strings.Join(parts, "_")
}

// Camelize upper cases the first rune of every word of s and joins them:
// "blog_post" and "blog-post" become "BlogPost". Acronyms are left as is.
func Camelize(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		first, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(first))
		b.WriteString(w[size:])
	}
	return b.String()
}

// words splits s at underscores, dashes, spaces and case changes. A run of
// upper case letters stays one word until the last of them starts a lower
// case word: "HTTPServer" is "HTTP", "Server".
func words(s string) []string {
	runes := []rune(s)
	result := []string{}
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			result = append(result, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			continue
		}

		if start >= 0 && unicode.IsUpper(r) {
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(runes[i-1]) || nextIsLower {
				flush(i)
			}
		}

		if start < 0 {
			start = i
		}
	}

	flush(len(runes))
	return result
}
