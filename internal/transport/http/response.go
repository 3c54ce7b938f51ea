package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Msg: "成功", Data: data})
}

// Unavailable 依赖不可用（503），仍返回数据便于排查
func Unavailable(c *gin.Context, data interface{}) {
	c.JSON(http.StatusServiceUnavailable, Response{Code: http.StatusServiceUnavailable, Msg: "服务不可用", Data: data})
}
