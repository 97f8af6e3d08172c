package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge 响应体超过限制
var ErrTooLarge = errors.New("响应体超过大小限制")

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP请求返回错误状态: %d (%s)", e.StatusCode, e.URL)
}

// Client HTTP客户端包装器，提供便利的请求方法
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	retries    int
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRetries 设置 5xx / 网络错误时的重试次数
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		c.retries = retries
	}
}

// NewClient 创建HTTP客户端，默认跟随重定向
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout: 30 * time.Second,
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(client)
	}

	if _, ok := client.headers["User-Agent"]; !ok {
		client.headers["User-Agent"] = "AgentStack/1.0"
	}

	return client
}

// Do 执行HTTP请求，5xx 与网络错误按退避重试（仅限无请求体的请求）
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	retries := c.retries
	if req.Body != nil && req.GetBody == nil {
		retries = 0
	}

	var resp *http.Response
	var err error
	for i := 0; i <= retries; i++ {
		if i > 0 {
			if req.GetBody != nil {
				if req.Body, err = req.GetBody(); err != nil {
					return nil, err
				}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * 100 * time.Millisecond):
			}
		}

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil && i < retries {
			resp.Body.Close()
		}
	}

	return resp, err
}

// Get 发送GET请求
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建GET请求失败: %w", err)
	}
	return c.Do(ctx, req)
}

// GetJSON 发送GET请求并解析JSON响应
func (c *Client) GetJSON(ctx context.Context, url string, result interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("GET请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("解析JSON响应失败: %w", err)
	}
	return nil
}

// Download 下载结果
type Download struct {
	Body        []byte
	ContentType string
	FinalURL    string // 跟随重定向后的地址
}

// Download 下载整个响应体，maxBytes <= 0 表示不限制
func (c *Client) Download(ctx context.Context, url string, maxBytes int64) (*Download, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, ErrTooLarge
	}

	return &Download{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
