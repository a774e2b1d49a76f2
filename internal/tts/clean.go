package tts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	zeroWidth  = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanText 合成前清洗文本：去零宽字符、合并空白、去掉开头的非单词字符
func CleanText(text string) (string, error) {
	cleaned := zeroWidth.Replace(text)
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimLeftFunc(cleaned, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyText, text)
	}
	return cleaned, nil
}
