package scan

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUnicode applies NFKC normalization, strips invisible formatting
// characters, and maps cross-script homoglyphs to ASCII. Scanner patterns
// always run against the normalized form so fullwidth or Cyrillic lookalike
// text cannot slip past a literal match.
func NormalizeUnicode(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = norm.NFKC.String(s)
	s = StripInvisible(s)
	return stripConfusables(s)
}

// StripInvisible removes zero-width and directional formatting characters.
// These are invisible to a human reader but break literal pattern matching,
// e.g. "ign​ore previous instructions".
func StripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if invisibleRunes[r] {
			return -1
		}
		return r
	}, s)
}

func stripConfusables(s string) string {
	return strings.Map(func(r rune) rune {
		if ascii, ok := confusableMap[r]; ok {
			return ascii
		}
		return r
	}, s)
}

// invisibleRunes is the set of zero-width and formatting characters stripped
// before scanning.
var invisibleRunes = map[rune]bool{
	'​': true, // zero-width space
	'‌': true, // zero-width non-joiner
	'‍': true, // zero-width joiner
	'\uFEFF': true, // zero-width no-break space (BOM)
	'­': true, // soft hyphen
	'͏': true, // combining grapheme joiner
	'⁠': true, // word joiner
	'⁡': true, // function application
	'⁢': true, // invisible times
	'⁣': true, // invisible separator
	'⁤': true, // invisible plus
	'‎': true, // left-to-right mark
	'‏': true, // right-to-left mark
	'‪': true, // left-to-right embedding
	'‫': true, // right-to-left embedding
	'‬': true, // pop directional formatting
	'‭': true, // left-to-right override
	'‮': true, // right-to-left override
}

// confusableMap maps the most common cross-script homoglyphs to ASCII.
// NFKC alone does not touch these; a prompt written with Cyrillic vowels
// reads identically to a human and bypasses every literal pattern.
var confusableMap = map[rune]rune{
	// Cyrillic
	'а': 'a', // а
	'е': 'e', // е
	'і': 'i', // і
	'о': 'o', // о
	'р': 'p', // р
	'с': 'c', // с
	'у': 'y', // у
	'х': 'x', // х
	'А': 'A', // А
	'В': 'B', // В
	'Е': 'E', // Е
	'К': 'K', // К
	'М': 'M', // М
	'Н': 'H', // Н
	'О': 'O', // О
	'Р': 'P', // Р
	'С': 'C', // С
	'Т': 'T', // Т
	'Х': 'X', // Х
	// Greek
	'α': 'a', // α
	'ε': 'e', // ε
	'ι': 'i', // ι
	'ο': 'o', // ο
	'ρ': 'p', // ρ
	'τ': 't', // τ
	'Α': 'A', // Α
	'Β': 'B', // Β
	'Ε': 'E', // Ε
	'Η': 'H', // Η
	'Ι': 'I', // Ι
	'Κ': 'K', // Κ
	'Μ': 'M', // Μ
	'Ν': 'N', // Ν
	'Ο': 'O', // Ο
	'Ρ': 'P', // Ρ
	'Τ': 'T', // Τ
	'Υ': 'Y', // Υ
	'Χ': 'X', // Χ
}

// printableRatio returns the fraction of bytes that are printable ASCII or
// common whitespace. Used to decide whether decoded base64 is text worth
// re-scanning or just binary noise.
func printableRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	printable := 0
	for _, c := range b {
		if (c >= 0x20 && c < 0x7F) || c == '\n' || c == '\r' || c == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(len(b))
}
