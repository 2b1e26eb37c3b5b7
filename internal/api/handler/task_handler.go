package handler

import (
	"github.com/gin-gonic/gin"

	"code-indexer/internal/dto"
	"code-indexer/internal/scheduler"
	"code-indexer/pkg/responses"
	"code-indexer/pkg/utils"
)

type TaskHandler struct {
	scheduling *scheduler.SchedulingService
}

func NewTaskHandler(scheduling *scheduler.SchedulingService) *TaskHandler {
	return &TaskHandler{scheduling: scheduling}
}

// List 已注册的调度任务
func (h *TaskHandler) List(c *gin.Context) {
	names := h.scheduling.TaskNames()
	tasks := make([]dto.TaskResponse, 0, len(names))
	for _, name := range names {
		task := dto.TaskResponse{Name: name}
		if period := h.scheduling.CachePeriod(name); period != nil {
			p := period.String()
			task.Period = &p
		}
		tasks = append(tasks, task)
	}
	responses.Success(c, tasks)
}

// Execute 手动执行调度任务, 周期内已执行过时不会重复执行
func (h *TaskHandler) Execute(c *gin.Context) {
	var req dto.TaskParam
	if err := c.ShouldBindUri(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	if err := h.scheduling.Execute(c.Request.Context(), req.Name); err != nil {
		responses.Error(c, err)
		return
	}

	responses.SuccessWithMessage(c, "执行成功", nil)
}
