package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key the envelope reads the
// request id back from.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an id, keeping one the
// client already sent so a submission can be correlated between the
// client log and the service log.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
