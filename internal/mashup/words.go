package mashup

import (
	"strings"
	"unicode"
)

// SplitWords 按空白切分引言
func SplitWords(quote string) []string {
	return strings.Fields(quote)
}

// JoinWords 拼接 [start, end) 范围内的词
func JoinWords(words []string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(words) {
		end = len(words)
	}
	if start >= end {
		return ""
	}
	return strings.Join(words[start:end], " ")
}

// NormalizeWord 去掉非单词字符并转小写，"Man." -> "man"
func NormalizeWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
