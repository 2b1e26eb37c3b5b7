package model

import "gorm.io/datatypes"

const ConnectionTableName = "code_connections"

// Connection 向量检索后端集群配置
//
// Options 示例:
//
//	{"url": ["http://es-1:9200", {"scheme": "https", "host": "es-2", "port": 9200}], "aws_region": "us-east-1"}
type Connection struct {
	BaseModel
	Name    string            `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Adapter string            `gorm:"size:50;not null" json:"adapter"` // elasticsearch / opensearch / postgresql
	Prefix  string            `gorm:"size:100;not null;default:''" json:"prefix"`
	Active  bool              `gorm:"not null;default:false;index" json:"active"`
	Options datatypes.JSONMap `gorm:"type:json" json:"options"`

	// CredentialsEnc AES-256-GCM 加密后的 JSON 凭证, 例如 {"user":"..","password":".."}
	CredentialsEnc string `gorm:"type:text" json:"-"`
}

func (Connection) TableName() string {
	return ConnectionTableName
}
