package model

import (
	"database/sql"
)

type Scope string
type ValueType string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"

	TypeString ValueType = "string"
	TypeBool   ValueType = "bool"
	TypeNumber ValueType = "number"
	TypeSecret ValueType = "secret"
)

// ConfigItem 运行时可修改的配置, 例如索引总开关
type ConfigItem struct {
	BaseModel

	Scope     Scope         `gorm:"size:20;not null;uniqueIndex:idx_config_scope_key,priority:1" json:"scope"`
	ProjectID sql.NullInt64 `gorm:"uniqueIndex:idx_config_scope_key,priority:2" json:"project_id"`
	Key       string        `gorm:"column:config_key;size:100;not null;uniqueIndex:idx_config_scope_key,priority:3" json:"key"`
	Value     string        `gorm:"column:config_value;type:text;not null" json:"value"`
	ValueType ValueType     `gorm:"size:20;not null" json:"value_type"`
}

func (ConfigItem) TableName() string {
	return "config_items"
}
