package model

const ProjectTableName = "projects"
const NamespaceTableName = "namespaces"

// Namespace 命名空间, ParentID 为空表示顶层
type Namespace struct {
	BaseModel
	Path     string `gorm:"size:255;not null" json:"path"`
	ParentID *int64 `gorm:"index" json:"parent_id"`

	// 资格判定输入, 由计费/设置系统同步
	SubscriptionActive bool `gorm:"not null;default:false" json:"subscription_active"`
	DuoFeaturesEnabled bool `gorm:"not null;default:false" json:"duo_features_enabled"`
}

func (Namespace) TableName() string {
	return NamespaceTableName
}

// Project 项目, 仓库存放在 RepositoryStorage 下的 DiskPath
type Project struct {
	BaseModel
	NamespaceID        int64  `gorm:"not null;index" json:"namespace_id"`
	RootNamespaceID    int64  `gorm:"not null;index" json:"root_namespace_id"`
	FullPath           string `gorm:"size:500;not null" json:"full_path"`
	RepositoryStorage  string `gorm:"size:100;not null;default:'default'" json:"repository_storage"`
	DiskPath           string `gorm:"size:500;not null" json:"disk_path"` // 相对 storage 根目录, 例如 @hashed/ab/cd/xxx.git
	DuoFeaturesEnabled bool   `gorm:"not null" json:"duo_features_enabled"`
}

func (Project) TableName() string {
	return ProjectTableName
}
