package parsers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dslipak/pdf"
)

// PDFParser PDF 文件解析器，每页文本作为一个段落
type PDFParser struct{}

// NewPDFParser 创建 PDF 解析器
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse 解析 PDF 文件
func (p *PDFParser) Parse(reader io.Reader) (result *Result, err error) {
	// pdf 库遇到损坏文件会 panic
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	// pdf.NewReader 需要 ReaderAt
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取 PDF 内容失败: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页失败不影响其他页
			continue
		}
		if text = strings.TrimSpace(normalizeNewlines(text)); text != "" {
			pages = append(pages, text)
		}
	}

	metadata := map[string]any{
		"num_pages":    numPages,
		"tables_count": 0,
	}
	if title := strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text()); title != "" {
		metadata["title"] = title
	}

	return &Result{
		Markdown: strings.Join(pages, "\n\n"),
		Metadata: metadata,
	}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *PDFParser) SupportedExtensions() []string {
	return []string{".pdf"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *PDFParser) CanParse(extension string) bool {
	return canParse(p.SupportedExtensions(), extension)
}
