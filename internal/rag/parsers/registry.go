package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ParserRegistry 按扩展名选择解析器
type ParserRegistry struct {
	parsers []Parser
}

// NewParserRegistry 创建带默认解析器的注册表
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{}

	r.Register(NewTextParser())
	r.Register(NewMarkdownParser())
	r.Register(NewHTMLParser())
	r.Register(NewPDFParser())
	r.Register(NewDocxParser())

	return r
}

// Register 注册解析器，后注册的优先
func (r *ParserRegistry) Register(p Parser) {
	r.parsers = append([]Parser{p}, r.parsers...)
}

// Supports 是否存在可处理该扩展名的解析器
func (r *ParserRegistry) Supports(extension string) bool {
	for _, p := range r.parsers {
		if p.CanParse(extension) {
			return true
		}
	}
	return false
}

// Parse 根据文件名扩展名选择解析器
func (r *ParserRegistry) Parse(fileName string, reader io.Reader) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	for _, p := range r.parsers {
		if p.CanParse(ext) {
			result, err := p.Parse(reader)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(result.Markdown) == "" {
				return nil, ErrEmptyContent
			}
			if result.Metadata == nil {
				result.Metadata = map[string]any{}
			}
			return result, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
}
