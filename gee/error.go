package gee

// ErrorResponse 是所有错误响应的统一结构
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"` //没有就省略
}

func NewErrorResponse(c *Context, code int, message string) ErrorResponse {
	return ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: c.Req.Header.Get("X-Request-ID"),
	}
}
