package parsers

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DocxParser Word 文档解析器（.docx）
// .docx 文件本质上是 ZIP 压缩包，正文在 word/document.xml
type DocxParser struct{}

// NewDocxParser 创建 DOCX 解析器
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

// Parse 解析 DOCX 文档
func (p *DocxParser) Parse(reader io.Reader) (*Result, error) {
	// zip 需要 ReaderAt
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文档失败: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 DOCX 失败: %w", err)
	}

	var documentXML, coreXML []byte
	for _, file := range zipReader.File {
		switch file.Name {
		case "word/document.xml":
			if documentXML, err = readZipFile(file); err != nil {
				return nil, err
			}
		case "docProps/core.xml":
			coreXML, _ = readZipFile(file)
		}
	}
	if documentXML == nil {
		return nil, fmt.Errorf("无效的 DOCX 文件：找不到 document.xml")
	}

	markdown, tables, err := p.convert(documentXML)
	if err != nil {
		return nil, fmt.Errorf("解析文档内容失败: %w", err)
	}

	metadata := map[string]any{"tables_count": tables}
	if title := coreTitle(coreXML); title != "" {
		metadata["title"] = title
	}
	return &Result{Markdown: markdown, Metadata: metadata}, nil
}

// SupportedExtensions 支持的扩展名
func (p *DocxParser) SupportedExtensions() []string {
	return []string{".docx"}
}

// CanParse 检查是否支持该扩展名
func (p *DocxParser) CanParse(ext string) bool {
	return canParse(p.SupportedExtensions(), ext)
}

// convert 流式读取 document.xml：段落转为 Markdown 段落，标题样式转为 #，表格行转为 | 分隔
func (p *DocxParser) convert(xmlData []byte) (string, int, error) {
	decoder := xml.NewDecoder(bytes.NewReader(xmlData))

	var (
		blocks    []string
		para      strings.Builder
		heading   int
		inText    bool
		tables    int
		tableRow  []string
		tableRows []string
		tableRowN int
		tblDepth  int
	)

	flushPara := func() {
		text := strings.TrimSpace(para.String())
		para.Reset()
		if text == "" {
			heading = 0
			return
		}
		if tblDepth > 0 {
			tableRow = append(tableRow, text)
		} else if heading > 0 {
			blocks = append(blocks, strings.Repeat("#", heading)+" "+text)
		} else {
			blocks = append(blocks, text)
		}
		heading = 0
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if tblDepth == 0 {
					tables++
					tableRows = nil
					tableRowN = 0
				}
				tblDepth++
			case "tr":
				tableRow = nil
			case "pStyle":
				heading = headingLevel(attr(t, "val"))
			case "t":
				inText = true
			case "tab":
				para.WriteByte(' ')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			case "tr":
				if tblDepth == 1 && len(tableRow) > 0 {
					tableRows = append(tableRows, "| "+strings.Join(tableRow, " | ")+" |")
					if tableRowN == 0 {
						tableRows = append(tableRows, "|"+strings.Repeat(" --- |", len(tableRow)))
					}
					tableRowN++
				}
				tableRow = nil
			case "tbl":
				tblDepth--
				if tblDepth == 0 && len(tableRows) > 0 {
					blocks = append(blocks, strings.Join(tableRows, "\n"))
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	return strings.Join(blocks, "\n\n"), tables, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("打开 %s 失败: %w", file.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel Heading1..Heading6 / Title 样式对应的标题级别
func headingLevel(style string) int {
	lower := strings.ToLower(style)
	if lower == "title" {
		return 1
	}
	if strings.HasPrefix(lower, "heading") {
		if n, err := strconv.Atoi(strings.TrimPrefix(lower, "heading")); err == nil && n >= 1 && n <= 6 {
			return n
		}
	}
	return 0
}

// coreTitle 读取 docProps/core.xml 中的 dc:title
func coreTitle(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var props struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(data, &props); err != nil {
		return ""
	}
	return strings.TrimSpace(props.Title)
}
