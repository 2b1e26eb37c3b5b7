package dto

// IndexingSettingRequest 设置代码索引总开关
type IndexingSettingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// IndexingSettingResponse 当前生效的开关值
type IndexingSettingResponse struct {
	Enabled bool `json:"enabled"`
}

// TaskParam 调度任务名
type TaskParam struct {
	Name string `uri:"name" binding:"required,max=100"`
}

// TaskResponse 调度任务
type TaskResponse struct {
	Name string `json:"name"`
	// Period 节流周期, 为空表示不限频
	Period *string `json:"period"`
}
