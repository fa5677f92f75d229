package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"unitrack/internal/core/apperror"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// operationIDKey is the gin context key holding the operation id.
const operationIDKey = "operation_id"

// Idempotency middleware forwards the X-Idempotency-Key header of mutating
// requests to handlers as the engine operation id. The engine records and
// replays results itself.
func Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			_ = c.Error(apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLen))
			c.Abort()
			return
		}

		c.Set(operationIDKey, key)
		c.Next()
	}
}

// OperationID returns the operation id set by Idempotency, if any.
func OperationID(c *gin.Context) string {
	return c.GetString(operationIDKey)
}
