package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

type SuccessResponse struct {
	Status  string      `json:"status"`
	Results *int        `json:"results,omitempty"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// SendData wraps a single record as {"status":"success","data":{key: value}}.
func SendData(c *gin.Context, status int, key string, value interface{}) {
	c.JSON(status, SuccessResponse{
		Status: StatusSuccess,
		Data:   gin.H{key: value},
	})
}

// ListResponse reports the number of items alongside the wrapped list.
func ListResponse(key string, items interface{}, count int) SuccessResponse {
	return SuccessResponse{
		Status:  StatusSuccess,
		Results: &count,
		Data:    gin.H{key: items},
	}
}

func SendList(c *gin.Context, key string, items interface{}, count int) {
	c.JSON(http.StatusOK, ListResponse(key, items, count))
}

func SendMessage(c *gin.Context, status int, message string) {
	c.JSON(status, SuccessResponse{
		Status:  StatusSuccess,
		Message: message,
	})
}

func SendNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
