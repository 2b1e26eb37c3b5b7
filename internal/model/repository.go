package model

import (
	"time"

	"code-indexer/pkg/constants"
)

const RepositoryTableName = "code_repositories"

// Repository 某个项目在某个 connection 上的代码索引记录
type Repository struct {
	BaseModel
	ProjectID          int64  `gorm:"column:project_id;not null;uniqueIndex:idx_code_repo_project_connection,priority:2" json:"project_id"`
	ConnectionID       int64  `gorm:"column:connection_id;not null;uniqueIndex:idx_code_repo_project_connection,priority:1;index:idx_code_repo_connection_state,priority:1" json:"connection_id"`
	EnabledNamespaceID *int64 `gorm:"column:enabled_namespace_id;index" json:"enabled_namespace_id"`
	State              int8   `gorm:"column:state;not null;default:0;index:idx_code_repo_connection_state,priority:2" json:"state"`

	// LastCommit 最近一次成功索引的 HEAD, 首次索引前为空
	LastCommit *string `gorm:"column:last_commit;size:64" json:"last_commit"`

	InitialIndexingLastQueuedItem     *string `gorm:"column:initial_indexing_last_queued_item;size:64" json:"initial_indexing_last_queued_item"`
	IncrementalIndexingLastQueuedItem *string `gorm:"column:incremental_indexing_last_queued_item;size:64" json:"incremental_indexing_last_queued_item"`

	LastQueriedAt *time.Time `gorm:"column:last_queried_at" json:"last_queried_at"`
	LastError     *string    `gorm:"column:last_error;type:text" json:"last_error"`
	DeleteReason  *string    `gorm:"column:delete_reason;size:32" json:"delete_reason"`

	// Relations
	Project    *Project    `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Connection *Connection `gorm:"foreignKey:ConnectionID" json:"connection,omitempty"`
}

func (Repository) TableName() string {
	return RepositoryTableName
}

// StateName 状态名
func (r *Repository) StateName() string {
	return constants.RepositoryStateToString(r.State)
}
