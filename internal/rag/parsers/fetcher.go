package parsers

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"agentstack/pkg/httputil"

	"github.com/gabriel-vasile/mimetype"
)

// defaultExtension 既无扩展名又无法识别类型时按 PDF 处理
const defaultExtension = ".pdf"

// contentTypeExtensions Content-Type 到扩展名的映射
var contentTypeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/html":     ".html",
	"text/markdown": ".md",
	"text/plain":    ".txt",
}

// FetcherConfig 抓取配置
type FetcherConfig struct {
	Timeout         time.Duration
	MaxBytes        int64
	AllowLocalFiles bool
}

// Fetcher 下载或读取源文件并转换为 Markdown
type Fetcher struct {
	client   *httputil.Client
	registry *ParserRegistry
	cfg      FetcherConfig
}

// NewFetcher 创建抓取器，client 为空时按配置超时新建
func NewFetcher(client *httputil.Client, registry *ParserRegistry, cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if client == nil {
		client = httputil.NewClient(httputil.WithTimeout(cfg.Timeout))
	}
	if registry == nil {
		registry = NewParserRegistry()
	}
	return &Fetcher{client: client, registry: registry, cfg: cfg}
}

// Fetch 获取 source（http(s) 地址或本地路径）并解析
func (f *Fetcher) Fetch(ctx context.Context, source string) (*Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("source 不能为空")
	}

	var (
		data     []byte
		filename string
		err      error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, filename, err = f.download(ctx, source)
	} else {
		data, filename, err = f.readLocal(source)
	}
	if err != nil {
		return nil, err
	}

	result, err := f.registry.Parse(filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("转换 %s 失败: %w", filename, err)
	}

	return &Document{
		Markdown:   result.Markdown,
		Filename:   filename,
		SourceType: sourceType(filename),
		Metadata:   result.Metadata,
	}, nil
}

// download 文件名取自 URL 路径；没有扩展名时依次参考 Content-Type 与内容嗅探
func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	filename := filenameFromURL(rawURL)

	dl, err := f.client.Download(ctx, rawURL, f.cfg.MaxBytes)
	if err != nil {
		return nil, "", err
	}

	if filepath.Ext(filename) == "" {
		filename += detectExtension(dl.ContentType, dl.Body)
	}
	return dl.Body, filename, nil
}

func (f *Fetcher) readLocal(source string) ([]byte, string, error) {
	if !f.cfg.AllowLocalFiles {
		return nil, "", fmt.Errorf("不允许读取本地文件: %s", source)
	}
	p := strings.TrimPrefix(source, "file://")

	info, err := os.Stat(p)
	if err != nil {
		return nil, "", fmt.Errorf("读取本地文件失败: %w", err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%s 是目录", p)
	}
	if f.cfg.MaxBytes > 0 && info.Size() > f.cfg.MaxBytes {
		return nil, "", httputil.ErrTooLarge
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", fmt.Errorf("读取本地文件失败: %w", err)
	}

	filename := filepath.Base(p)
	if filepath.Ext(filename) == "" {
		filename += detectExtension("", data)
	}
	return data, filename, nil
}

// filenameFromURL URL 路径最后一段，缺省为 "document"
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "document"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}

// detectExtension Content-Type 优先，其次嗅探内容
func detectExtension(contentType string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeExtensions[mediaType]; ok {
			return ext
		}
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if ext, ok := contentTypeExtensions[m.String()]; ok {
			return ext
		}
		// mimetype 带 charset 参数
		if mediaType, _, err := mime.ParseMediaType(m.String()); err == nil {
			if ext, ok := contentTypeExtensions[mediaType]; ok {
				return ext
			}
		}
	}
	return defaultExtension
}

// sourceType 扩展名去掉点，未知时为 "unknown"
func sourceType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
