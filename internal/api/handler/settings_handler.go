package handler

import (
	"github.com/gin-gonic/gin"

	"code-indexer/internal/dto"
	"code-indexer/internal/service"
	"code-indexer/pkg/responses"
	"code-indexer/pkg/utils"
)

type SettingsHandler struct {
	service service.SettingsService
}

func NewSettingsHandler(service service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

func (h *SettingsHandler) GetIndexing(c *gin.Context) {
	responses.Success(c, dto.IndexingSettingResponse{Enabled: h.service.IndexingEnabled(c.Request.Context())})
}

// UpdateIndexing 写入全局开关, 覆盖配置文件中的默认值
func (h *SettingsHandler) UpdateIndexing(c *gin.Context) {
	var req dto.IndexingSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	if err := h.service.SetIndexingEnabled(c.Request.Context(), *req.Enabled); err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, dto.IndexingSettingResponse{Enabled: h.service.IndexingEnabled(c.Request.Context())})
}
