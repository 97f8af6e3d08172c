package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// TextParser 纯文本解析器，内容原样作为 Markdown
type TextParser struct{}

// NewTextParser 创建文本解析器
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse 解析文本文件
func (p *TextParser) Parse(reader io.Reader) (*Result, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return &Result{
		Markdown: strings.TrimSpace(normalizeNewlines(string(content))),
		Metadata: map[string]any{},
	}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *TextParser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".csv", ".log"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *TextParser) CanParse(extension string) bool {
	return canParse(p.SupportedExtensions(), extension)
}

// MarkdownParser Markdown 解析器
// 内容保持不变，通过 goldmark 语法树提取标题与表格数量
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser 创建 Markdown 解析器
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Parse 解析 Markdown 文件
func (p *MarkdownParser) Parse(reader io.Reader) (*Result, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	source := []byte(normalizeNewlines(string(content)))

	doc := p.md.Parser().Parse(text.NewReader(source))

	metadata := map[string]any{}
	tables := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if _, ok := metadata["title"]; !ok && node.Level == 1 {
				if title := strings.TrimSpace(nodeText(node, source)); title != "" {
					metadata["title"] = title
				}
			}
		case *extast.Table:
			tables++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	metadata["tables_count"] = tables

	return &Result{
		Markdown: strings.TrimSpace(string(source)),
		Metadata: metadata,
	}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *MarkdownParser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *MarkdownParser) CanParse(extension string) bool {
	return canParse(p.SupportedExtensions(), extension)
}

// nodeText 拼接节点下所有文本片段
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() {
					b.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
