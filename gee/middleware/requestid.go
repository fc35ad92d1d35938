package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"imgopt.local/gee"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// ReqID 透传上游的 X-Request-ID，没有或过长时重新生成
func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = GenerateReqID()
			ctx.Req.Header.Set(requestIDHeader, id)
		}
		ctx.SetHeader(requestIDHeader, id)

		ctx.Next()
	}
}

// GenerateReqID 返回 32 个十六进制字符；随机源出错时退化为纳秒时间戳
func GenerateReqID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(src)
}
