package document

import (
	"strings"
)

// Classifier decides the Kind of an extracted row.
type Classifier interface {
	Classify(text string, fontSize float64) Kind
}

// HeuristicClassifier 基于文本特征的表格/公式判定
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(text string, fontSize float64) Kind {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return KindText
	case isTableRow(text):
		return KindTable
	case isMathFormula(text):
		return KindFormula
	default:
		return KindText
	}
}

// isTableRow treats rows with cell separators as table rows,
// e.g. "R1C1 | R1C2" or tab-separated cells.
func isTableRow(text string) bool {
	if strings.Count(text, "|") >= 1 {
		cells := 0
		for _, c := range strings.Split(text, "|") {
			if strings.TrimSpace(c) != "" {
				cells++
			}
		}
		return cells >= 2
	}
	return strings.Count(text, "\t") >= 2
}

// isMathFormula checks if text looks like a mathematical formula
func isMathFormula(text string) bool {
	if len(text) == 0 {
		return false
	}

	mathSymbolCount := 0
	totalChars := 0
	mathSymbols := "∫∑∏√∂∇±×÷≤≥≠≈∞∈∉⊂⊃∪∩∧∨¬∀∃αβγδεζηθικλμνξοπρστυφχψω"

	for _, r := range text {
		totalChars++
		switch r {
		case '+', '-', '*', '/', '=', '<', '>', '^', '_', '~',
			'(', ')', '[', ']', '{', '}':
			mathSymbolCount++
		default:
			if strings.ContainsRune(mathSymbols, r) {
				mathSymbolCount++
			}
		}
	}

	// 超过 30% 是数学符号
	if float64(mathSymbolCount)/float64(totalChars) > 0.3 {
		return true
	}

	wordCount := len(strings.Fields(text))

	// "x = y + z" / "f(x) = ..."
	if strings.Contains(text, "=") && strings.ContainsAny(text, "(+-") && wordCount <= 5 && len(text) < 100 {
		return true
	}

	// "E = mc^2" / "a_i = b"
	if strings.Contains(text, "=") && strings.ContainsAny(text, "^_") && wordCount <= 5 && len(text) < 100 {
		return true
	}

	if strings.ContainsAny(text, "∫∑∏√∂∇") {
		return true
	}

	if strings.Count(text, "_")+strings.Count(text, "^") > 2 && len(text) < 100 {
		return true
	}

	return false
}

// isPostScriptCode checks if text looks like PostScript/PDF operator code
// leaked into the text layer.
func isPostScriptCode(text string) bool {
	if len(text) == 0 {
		return false
	}

	textLower := strings.ToLower(text)

	// "/name def"
	if (strings.Contains(text, " def ") || strings.HasSuffix(text, " def")) && strings.Contains(text, "/") {
		return true
	}
	if strings.Contains(textLower, "null def") ||
		strings.Contains(text, "@stx") || strings.Contains(text, "@etx") ||
		strings.Contains(textLower, "/burl") || strings.Contains(textLower, "burl@") {
		return true
	}

	for _, op := range []string{
		"currentpoint", "gsave", "grestore", "newpath", "closepath",
		"setrgbcolor", "setgray", "setlinewidth", "showpage",
		"moveto", "lineto", "curveto",
	} {
		if strings.Contains(textLower, op) {
			return true
		}
	}

	if strings.Contains(text, "://") || strings.Contains(textLower, "http") {
		return false
	}

	// 多个 "/Name" 形式的 PostScript 名称
	slashNameCount := 0
	for _, word := range strings.Fields(text) {
		if len(word) < 2 || word[0] != '/' {
			continue
		}
		isName := true
		for _, c := range word[1:] {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '@') {
				isName = false
				break
			}
		}
		if isName {
			slashNameCount++
		}
	}
	return slashNameCount >= 3
}

// hasExcessiveNonPrintable reports whether more than 10% of the runes are
// control characters.
func hasExcessiveNonPrintable(text string) bool {
	if len(text) == 0 {
		return false
	}

	bad, total := 0, 0
	for _, r := range text {
		total++
		if (r < 32 && r != '\n' && r != '\r' && r != '\t') || (r >= 0x7F && r <= 0x9F) {
			bad++
		}
	}
	return float64(bad)/float64(total) > 0.1
}
