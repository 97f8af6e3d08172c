package parsers

import (
	"errors"
	"io"
	"strings"
)

// ErrUnsupported 没有可处理该类型的解析器
var ErrUnsupported = errors.New("不支持的文档类型")

// ErrEmptyContent 解析后没有任何文本
var ErrEmptyContent = errors.New("文档内容为空")

// Result 单个文件的解析结果
type Result struct {
	Markdown string
	Metadata map[string]any // title, num_pages, tables_count 等
}

// Parser 把一种格式的文件转换为 Markdown
type Parser interface {
	// Parse 读取全部内容并转换
	Parse(reader io.Reader) (*Result, error)

	// SupportedExtensions 支持的扩展名（如 ".pdf"）
	SupportedExtensions() []string

	// CanParse 是否支持该扩展名
	CanParse(extension string) bool
}

// Document 抓取并转换后的文档
type Document struct {
	Markdown   string
	Filename   string
	SourceType string // 扩展名去掉点，未知时为 "unknown"
	Metadata   map[string]any
}

func canParse(supported []string, extension string) bool {
	extension = strings.ToLower(extension)
	for _, ext := range supported {
		if ext == extension {
			return true
		}
	}
	return false
}
