package translator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageName returns the English name of a BCP 47 tag, e.g. "zh" -> "Chinese".
// "auto" and unparsable tags are returned as-is.
func languageName(tag string) string {
	if tag == "" || strings.EqualFold(tag, "auto") {
		return "the detected source language"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}

func buildSystemPrompt(langIn, langOut string) string {
	return fmt.Sprintf(`You are a professional translator specializing in academic and technical documents.
Your task is to translate text extracted from PDF pages from %s to %s.

RULES:
1. Translate accurately and keep the meaning of every sentence.
2. Preserve mathematical formulas, symbols, numbers and citations exactly as they are.
3. Do not add explanations or notes. Output only the translated text.
4. Keep line breaks where the input has them.`, languageName(langIn), languageName(langOut))
}

func buildUserPrompt(text string) string {
	return "Translate the following text:\n\n" + text
}
