package repository

import "gorm.io/gorm"

// QueryOption 查询附加条件
type QueryOption func(*gorm.DB) *gorm.DB

// WithPreloads 预加载关联, 例如 Connection / Project
func WithPreloads(associations ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, a := range associations {
			db = db.Preload(a)
		}
		return db
	}
}

func applyOptions(db *gorm.DB, opts []QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}
