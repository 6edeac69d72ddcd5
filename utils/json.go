package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Accepted writes a 202 for work that continues after the response.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, gin.H{
		"code": 0,
		"msg":  "accepted",
		"data": data,
	})
}

// Fail writes an error JSON response.
func Fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  err.Error(),
	})
}

// FailKind is Fail plus the error kind and whether the same request may be retried.
func FailKind(c *gin.Context, status int, err error, kind string, retryable bool) {
	c.JSON(status, gin.H{
		"code":      -1,
		"msg":       err.Error(),
		"kind":      kind,
		"retryable": retryable,
	})
}
