package api

import (
	"fileserver/utils"
	"time"

	"github.com/gin-gonic/gin"
)

// Every JSON response is wrapped in an envelope carrying the construction
// timestamp (epoch milliseconds) and the HTTP status. Successful responses
// optionally carry a content field; errors nest code and message under
// status.

func respondContent(c *gin.Context, status int, content any) {
	c.JSON(status, gin.H{
		"ts":      time.Now().UnixMilli(),
		"status":  status,
		"content": content,
	})
}

func respondError(c *gin.Context, err error) {
	code, message := utils.StatusOf(err)
	c.AbortWithStatusJSON(code, gin.H{
		"ts": time.Now().UnixMilli(),
		"status": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
