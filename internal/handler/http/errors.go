package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/service"
)

// HandleServiceError 把服务层错误映射为 HTTP 响应。
// 不存在与无权访问同为 404：不向外泄露"存在但不可见"。
func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrValidation) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	} else if errors.Is(err, service.ErrRundownNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Rundown not found")
	} else if errors.Is(err, service.ErrPermissionDenied) {
		ErrorResponse(c, http.StatusForbidden, "Permission denied")
	} else {
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
