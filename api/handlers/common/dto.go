package common

// APIResponse 通用成功响应，业务数据放在 Data 中。
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse 统一错误返回结构，Code 为错误类别（如 ValidationError、EmbeddingError）。
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
