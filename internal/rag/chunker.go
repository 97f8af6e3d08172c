package rag

import (
	"fmt"
	"strings"
	"unicode"
)

// boundaryWindowRatio 句子边界回溯的窗口比例（窗口末尾 20%）
const boundaryWindowRatio = 0.2

// Chunker 文档分块器
type Chunker struct {
	ChunkSize    int // 分块大小(字符数)
	ChunkOverlap int // 重叠大小(字符数)
}

// NewChunker 创建新的分块器
// chunkSize: 每个分块的字符数
// chunkOverlap: 相邻分块之间的重叠字符数
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10 // 重叠不超过10%
	}

	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// Chunk 按分块器配置切分文本
func (c *Chunker) Chunk(text string) []Chunk {
	// NewChunker 已保证参数合法
	chunks, _ := ChunkText(text, c.ChunkSize, c.ChunkOverlap)
	return chunks
}

// ChunkText 将长文本切分为带重叠、尽量落在句子边界的片段。
//
// 文本不超过 maxSize 时只产出一个片段。否则以 maxSize 为窗口滑动，在窗口末尾 20%
// 内从后向前寻找最近的句子结束符（. ! ? 后接空白，或空行），找到则在其后切分。
// 下一片段从 end-overlap 开始，且必须严格大于上一片段起点，保证终止。
func ChunkText(text string, maxSize, overlap int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, newError(KindValidation, "chunk", fmt.Errorf("maxSize 必须大于 0: %d", maxSize))
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, newError(KindValidation, "chunk", fmt.Errorf("overlap 必须在 [0, %d) 范围内: %d", maxSize, overlap))
	}

	runes := []rune(text)
	total := len(runes)
	if total <= maxSize {
		return []Chunk{{Start: 0, End: total, Text: strings.TrimSpace(text)}}, nil
	}

	window := int(float64(maxSize) * boundaryWindowRatio)
	chunks := make([]Chunk, 0, total/(maxSize-overlap)+1)
	start := 0

	for start < total {
		end := start + maxSize
		if end > total {
			end = total
		}

		if end < total {
			searchStart := end - window
			if searchStart < start {
				searchStart = start
			}
			if cut := findSentenceBoundary(runes, searchStart, end); cut > start {
				end = cut
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{Start: start, End: end, Text: piece})
		}

		if end >= total {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// findSentenceBoundary 在 [from, to) 中从后向前寻找最近的句子结束符，
// 返回结束符之后的位置；分隔符必须完整落在区间内。找不到返回 -1。
func findSentenceBoundary(runes []rune, from, to int) int {
	for i := to - 2; i >= from; i-- {
		r, next := runes[i], runes[i+1]
		switch {
		case (r == '.' || r == '!' || r == '?') && unicode.IsSpace(next):
			return i + 2
		case r == '\n' && next == '\n':
			return i + 2
		}
	}
	return -1
}
