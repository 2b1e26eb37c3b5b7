package model

// Lease 分布式租约, 过期时间使用 unix 纳秒便于跨数据库比较
type Lease struct {
	LeaseKey  string `gorm:"column:lease_key;primaryKey;size:255" json:"lease_key"`
	Token     string `gorm:"size:64;not null" json:"token"`
	ExpiresAt int64  `gorm:"not null;index" json:"expires_at"`
}

func (Lease) TableName() string {
	return "leases"
}
