package graphrag

import (
	"strings"
	"unicode"
)

var sentenceEnds = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '；': true,
}

type chunker struct {
	size    int
	overlap int
}

// Split 按 size 个字符切分，相邻切片重叠 overlap 个字符。
// 切分点优先落在窗口末尾的段落、句子、空白边界上，回退距离见 backtrack
func (c chunker) Split(content string) []string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.boundary(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// backtrack 切分点最多回退的字符数：不超过窗口的四分之一，
// 也不超过步长 (size-overlap) 的一半，保证每次至少前进半个步长
func (c chunker) backtrack() int {
	return min(c.size/4, (c.size-c.overlap)/2)
}

// boundary 返回 (start, end] 内最合适的切分位置，找不到时返回 end
func (c chunker) boundary(runes []rune, start, end int) int {
	floor := end - c.backtrack()
	if floor <= start {
		floor = start + 1
	}

	// 段落
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// 句子
	for i := end - 1; i >= floor; i-- {
		if sentenceEnds[runes[i]] && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]) || runes[i] > unicode.MaxLatin1) {
			return i + 1
		}
	}
	// 空白
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
