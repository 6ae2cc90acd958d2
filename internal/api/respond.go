package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groveapp/grove/internal/apperr"
)

// writeError translates a service error into the JSON error envelope.
// Internal failures are logged and replaced with a generic message so
// lower-layer error text never reaches clients.
func writeError(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		log.Printf("api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    apperr.Code(err),
				"message": "internal server error",
			},
		})
		return
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": gin.H{
			"code":    apperr.Code(err),
			"message": err.Error(),
		},
	})
}

// optString returns a pointer to the query parameter, or nil if absent.
func optString(c *gin.Context, name string) *string {
	if v, ok := c.GetQuery(name); ok && v != "" {
		return &v
	}
	return nil
}
