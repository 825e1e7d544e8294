package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal makes text from other users safe to draw with tview.
// It drops:
//   - C0/C1 control characters other than newline and tab, so a message cannot
//     smuggle escape sequences into the terminal
//   - skin tone modifiers (U+1F3FB..U+1F3FF) that create multi-codepoint emoji
//   - the zero width joiner (U+200D) used in emoji sequences
//   - variation selectors that modify preceding characters
//
// A thumbs-up with a skin tone becomes a plain thumbs-up, which renders as a
// single 2-cell character.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(unicode.ReplacementChar)
		} else if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// oneLine flattens text for table cells.
func oneLine(s string) string {
	return strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
}
