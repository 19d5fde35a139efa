// README: Readiness gate; domain routes answer 503 until startup completes.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ready blocks requests with 503 until ready() reports a successful startup
// run. Health and init-progress routes are mounted outside this gate so the
// client can render the progress bar and offer retry.
func Ready(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ready() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service is still starting"})
			return
		}
		c.Next()
	}
}
