package httpx

import "github.com/gin-gonic/gin"

// HTTPError is the standard JSON error body.
type HTTPError struct {
	Error string `json:"error"`
}

func Err(c *gin.Context, status int, msg string) {
	c.JSON(status, HTTPError{Error: msg})
}
