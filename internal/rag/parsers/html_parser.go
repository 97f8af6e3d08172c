package parsers

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTMLParser HTML 文档解析器
// goquery 负责定位正文与提取元数据，html-to-markdown 负责转换
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser 创建 HTML 解析器
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{converter: md.NewConverter("", true, nil)}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Parse 解析 HTML 文档
func (p *HTMLParser) Parse(reader io.Reader) (*Result, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取 HTML 失败: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}

	metadata := map[string]any{
		"tables_count": doc.Find("table").Length(),
	}
	if title := extractTitle(doc); title != "" {
		metadata["title"] = title
	}

	// 移除非正文内容
	doc.Find("script, style, noscript, nav, header, footer, aside, iframe").Remove()

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find("article").First()
	}
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}

	var markdown string
	if main.Length() > 0 {
		markdown = p.converter.Convert(main)
	} else {
		markdown, err = p.converter.ConvertString(string(data))
		if err != nil {
			return nil, fmt.Errorf("转换 Markdown 失败: %w", err)
		}
	}

	markdown = blankLines.ReplaceAllString(strings.TrimSpace(markdown), "\n\n")
	return &Result{Markdown: markdown, Metadata: metadata}, nil
}

// SupportedExtensions 支持的扩展名
func (p *HTMLParser) SupportedExtensions() []string {
	return []string{".html", ".htm"}
}

// CanParse 检查是否支持该扩展名
func (p *HTMLParser) CanParse(ext string) bool {
	return canParse(p.SupportedExtensions(), ext)
}

// extractTitle 依次尝试 <title>、og:title、第一个 h1
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
