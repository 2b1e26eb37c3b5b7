package dto

import "time"

// RepositoryListQuery 仓库列表查询
type RepositoryListQuery struct {
	PageQuery
	ConnectionID *int64 `form:"connection_id" binding:"omitempty,min=1"`
	ProjectID    *int64 `form:"project_id" binding:"omitempty,min=1"`
	State        string `form:"state" binding:"omitempty,repo_state"`
}

// RepositoryResponse 仓库索引记录
type RepositoryResponse struct {
	ID                                int64      `json:"id"`
	ProjectID                         int64      `json:"project_id"`
	ConnectionID                      int64      `json:"connection_id"`
	EnabledNamespaceID                *int64     `json:"enabled_namespace_id"`
	State                             string     `json:"state"`
	LastCommit                        *string    `json:"last_commit"`
	InitialIndexingLastQueuedItem     *string    `json:"initial_indexing_last_queued_item"`
	IncrementalIndexingLastQueuedItem *string    `json:"incremental_indexing_last_queued_item"`
	LastQueriedAt                     *time.Time `json:"last_queried_at"`
	LastError                         *string    `json:"last_error"`
	DeleteReason                      *string    `json:"delete_reason"`
	CreatedAt                         time.Time  `json:"created_at"`
	UpdatedAt                         time.Time  `json:"updated_at"`
}
