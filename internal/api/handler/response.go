package handler

import (
	"errors"

	"cvision/internal/processor"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// statusFor 业务错误 -> HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrInvalidInput),
		errors.Is(err, processor.ErrUnsupportedFormat):
		return consts.StatusBadRequest
	case errors.Is(err, processor.ErrFileTooLarge):
		return consts.StatusRequestEntityTooLarge
	case errors.Is(err, processor.ErrEmptyDocument),
		errors.Is(err, processor.ErrExtractionFailed):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrJobNotFound),
		errors.Is(err, processor.ErrResumeNotFound):
		return consts.StatusNotFound
	case errors.Is(err, processor.ErrJobEmbeddingsMissing):
		return consts.StatusConflict
	case errors.Is(err, processor.ErrNotConfigured):
		return consts.StatusServiceUnavailable
	case errors.Is(err, processor.ErrEmbeddingFailed):
		return consts.StatusBadGateway
	}
	return consts.StatusInternalServerError
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusFor(err), utils.H{"success": false, "error": err.Error()})
}

func writeBadRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"success": false, "error": msg})
}

func writeOK(c *app.RequestContext, status int, id string, data interface{}) {
	body := utils.H{"success": true, "data": data}
	if id != "" {
		body["id"] = id
	}
	c.JSON(status, body)
}
