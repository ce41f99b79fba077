package compose

import (
	"math"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// MinFontSize 最小可读字号
const MinFontSize = 6

// measureFunc returns the width of text at size in points.
type measureFunc func(text string, size int) float64

// fontMeasure measures with the metrics of an installed or core font.
func fontMeasure(fontName string) measureFunc {
	return func(text string, size int) float64 {
		return font.TextWidth(text, fontName, size)
	}
}

// isWide reports whether r is a CJK rune, which may break a line anywhere.
func isWide(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// fitFontSize 按宽度等比缩小字号，不低于 MinFontSize
func fitFontSize(text string, size int, maxWidth float64, width measureFunc) int {
	if maxWidth <= 0 || size <= 0 {
		return size
	}
	w := width(text, size)
	if w <= maxWidth {
		return size
	}
	fitted := int(math.Floor(float64(size) * maxWidth / w))
	if fitted < MinFontSize {
		fitted = MinFontSize
	}
	return fitted
}

// tokens splits a paragraph into words, single wide runes and single spaces.
func tokens(s string) []string {
	var out []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
			if len(out) > 0 && out[len(out)-1] != " " {
				out = append(out, " ")
			}
		case isWide(r):
			flush()
			out = append(out, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return out
}

// wrapLines splits text into lines no wider than maxWidth. Latin words are
// kept whole, CJK runes may break anywhere.
func wrapLines(text string, size int, maxWidth float64, width measureFunc) []string {
	if maxWidth <= 0 || size <= 0 || text == "" {
		return []string{text}
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, tok := range tokens(para) {
			if tok == " " {
				if line != "" {
					line += " "
				}
				continue
			}
			candidate := line + tok
			if strings.TrimSpace(line) != "" && width(candidate, size) > maxWidth {
				lines = append(lines, strings.TrimRight(line, " "))
				candidate = tok
			}
			line = candidate
		}
		lines = append(lines, strings.TrimRight(line, " "))
	}
	return lines
}

// fitText returns the font size and lines used to draw text in a box of the
// given width. The size shrinks to fit the width first, and what still does
// not fit is wrapped.
func fitText(text string, size int, maxWidth float64, width measureFunc) (int, []string) {
	fitted := fitFontSize(text, size, maxWidth, width)
	if !strings.Contains(text, "\n") && width(text, fitted) <= maxWidth {
		return fitted, []string{text}
	}
	return fitted, wrapLines(text, fitted, maxWidth, width)
}
