package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for control API metrics.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one extension call.
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
}

// NewTimer starts timing a call.
func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		method:  method,
	}
}

// Stop records the call with its outcome and returns the elapsed time.
func (t *Timer) Stop(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RecordCall(t.method, outcome, elapsed)
	return elapsed
}
