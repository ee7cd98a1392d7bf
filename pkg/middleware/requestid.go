package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエスト追跡IDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// RequestID はリクエスト追跡IDを付与するGinミドルウェアを返す。
// クライアントがX-Request-IDを送信していればそれを引き継ぎ、
// なければ新規に採番する。IDはレスポンスヘッダーに反映され、
// プロキシ転送時にバックエンドへも伝播される。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set(HeaderRequestID, id)
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はリクエストに付与された追跡IDを返す。
// RequestIDミドルウェアが事前に適用されている必要がある。
func GetRequestID(c *gin.Context) string {
	return c.GetHeader(HeaderRequestID)
}
