package handler

import (
	"github.com/gin-gonic/gin"

	"code-indexer/internal/dto"
	"code-indexer/internal/service"
	"code-indexer/pkg/responses"
	"code-indexer/pkg/utils"
)

type RepositoryHandler struct {
	service service.RepositoryService
}

func NewRepositoryHandler(service service.RepositoryService) *RepositoryHandler {
	return &RepositoryHandler{
		service: service,
	}
}

// GetByID 获取仓库索引记录
func (h *RepositoryHandler) GetByID(c *gin.Context) {
	var req dto.IDParam
	if err := c.ShouldBindUri(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.GetByID(c.Request.Context(), req.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// List 仓库列表, 支持按 connection/project/state 过滤
func (h *RepositoryHandler) List(c *gin.Context) {
	var query dto.RepositoryListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	items, total, err := h.service.List(c.Request.Context(), &query)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, dto.NewPageResponse(items, total, query.GetPage(), query.GetPageSize()))
}

// Reset failed/deleted 的仓库重新进入 pending
func (h *RepositoryHandler) Reset(c *gin.Context) {
	var req dto.IDParam
	if err := c.ShouldBindUri(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Reset(c.Request.Context(), req.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.SuccessWithMessage(c, "重置成功", resp)
}

// MarkReady 下游确认 embedding 已生成
func (h *RepositoryHandler) MarkReady(c *gin.Context) {
	var req dto.IDParam
	if err := c.ShouldBindUri(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.MarkReady(c.Request.Context(), req.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Reindex 同步执行整仓索引
func (h *RepositoryHandler) Reindex(c *gin.Context) {
	var req dto.IDParam
	if err := c.ShouldBindUri(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Reindex(c.Request.Context(), req.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}
