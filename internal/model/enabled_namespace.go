package model

import "gorm.io/datatypes"

const EnabledNamespaceTableName = "code_enabled_namespaces"

// EnabledNamespace 允许在某个 connection 上做代码索引的顶层命名空间
type EnabledNamespace struct {
	BaseModel
	NamespaceID  int64             `gorm:"column:namespace_id;not null;uniqueIndex:idx_enabled_ns_connection_namespace,priority:2" json:"namespace_id"`
	ConnectionID int64             `gorm:"column:connection_id;not null;uniqueIndex:idx_enabled_ns_connection_namespace,priority:1" json:"connection_id"`
	State        int8              `gorm:"column:state;not null;default:0" json:"state"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`

	Namespace *Namespace `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
}

func (EnabledNamespace) TableName() string {
	return EnabledNamespaceTableName
}
