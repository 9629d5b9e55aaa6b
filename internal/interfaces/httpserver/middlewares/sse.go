package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrepareSSE sets the response headers for a Server-Sent Events stream and
// returns the flusher used to push events to the client as they occur.
// X-Accel-Buffering keeps reverse proxies from holding events back.
func PrepareSSE(c *gin.Context) (http.Flusher, bool) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	flusher, ok := c.Writer.(http.Flusher)
	return flusher, ok
}
