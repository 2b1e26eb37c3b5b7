package constants

import "fmt"

// RepositoryState 代码仓库索引状态
const (
	RepositoryStatePending                     int8 = 0  // 待初始索引
	RepositoryStateEmbeddingIndexingInProgress int8 = 10 // 初始 ref 已入队, 等待 embedding 完成
	RepositoryStateReady                       int8 = 20 // embedding 已确认, 增量索引
	RepositoryStateFailed                      int8 = 50 // 索引失败, 需人工重置
	RepositoryStatePendingDeletion             int8 = 80 // 等待删除 shard 数据
	RepositoryStateDeleted                     int8 = 90 // 已删除
)

var repositoryStateName = map[int8]string{
	RepositoryStatePending:                     "pending",
	RepositoryStateEmbeddingIndexingInProgress: "embedding_indexing_in_progress",
	RepositoryStateReady:                       "ready",
	RepositoryStateFailed:                      "failed",
	RepositoryStatePendingDeletion:             "pending_deletion",
	RepositoryStateDeleted:                     "deleted",
}

// RepositoryStateToString int8 → string
func RepositoryStateToString(state int8) string {
	if name, ok := repositoryStateName[state]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", state)
}

// DeleteReason 进入 pending_deletion 的原因, 按优先级排列
const (
	DeleteReasonWithoutEnabledNamespace = "without_enabled_namespace"
	DeleteReasonDuoFeaturesDisabled     = "duo_features_disabled"
	DeleteReasonNoRecentActivity        = "no_recent_activity"
)

// EnabledNamespaceState 已启用命名空间状态
const (
	EnabledNamespaceStatePending int8 = 0
	EnabledNamespaceStateReady   int8 = 10
)

// Git
const (
	// EmptyTreeSHA git 空目录树的哈希, 作为全量索引的起点
	EmptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
)

// 外部索引进程
const (
	IndexerOperationIndex  = "index"
	IndexerOperationDelete = "delete"

	// IndexerStreamEnv 打开 stdout 分段流式输出
	IndexerStreamEnv = "CODE_INDEXER_OUTPUT_MODE=stream"

	// StreamSectionMarker 分段标记行
	StreamSectionMarker = "--section-start--"
	// StreamVersionHeader 版本段头部
	StreamVersionHeader = "version,build_time"
	// StreamIDHeader hash 段头部
	StreamIDHeader = "id"
	// ContentHashLength 内容 hash 长度(sha256 hex), 与外部索引器同步修改
	ContentHashLength = 64
)

// 部署模式
const (
	EligibilityModeSaaS     = "saas"
	EligibilityModeInstance = "instance"
)

// 全局配置 key
const (
	SettingIndexingEnabled = "code_indexing.enabled"
)

// RepositoryStateFromString string → int8
func RepositoryStateFromString(name string) (int8, bool) {
	for state, n := range repositoryStateName {
		if n == name {
			return state, true
		}
	}
	return 0, false
}
