package common

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the body shape of every API response.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Data    T      `json:"data"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// error codes per kind; callers that need a finer code use Fail directly
var kindCodes = map[Kind]int{
	KindValidation: 10001,
	KindPermission: 40301,
	KindNotFound:   40401,
	KindConflict:   40901,
	KindNetwork:    50201,
	KindUnknown:    50001,
}

// FailErr answers with the status and code derived from the error kind.
// Unknown errors are logged and their details hidden.
func FailErr(c *gin.Context, err error) {
	kind := KindOf(err)
	status := kind.HTTPStatus()
	msg := MessageOf(err)
	if kind == KindUnknown {
		log.Printf("[%s %s] internal error: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	body := gin.H{
		"code":    kindCodes[kind],
		"message": msg,
		"data":    nil,
	}
	if f := FieldOf(err); f != "" {
		body["field"] = f
	}
	c.JSON(status, body)
}
