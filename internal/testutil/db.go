// Package testutil 测试辅助: SQLite 数据库与常用数据构造
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    conn := testutil.InsertConnection(t, db, "es", true)
//	    ns := testutil.InsertNamespace(t, db, "group", true)
//	    ...
//	}
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"code-indexer/internal/model"
	"code-indexer/internal/pkg/database"
	"code-indexer/pkg/constants"
)

// SetupTestDB 在临时目录创建 SQLite 数据库并同步表结构
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite 单写者
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func InsertConnection(t *testing.T, db *gorm.DB, name string, active bool) *model.Connection {
	t.Helper()
	conn := &model.Connection{
		Name:    name,
		Adapter: "elasticsearch",
		Prefix:  "gitlab_active_context",
		Active:  active,
		Options: map[string]interface{}{"url": []interface{}{"http://localhost:9200"}},
	}
	require.NoError(t, db.Create(conn).Error)
	return conn
}

func InsertNamespace(t *testing.T, db *gorm.DB, path string, eligible bool) *model.Namespace {
	t.Helper()
	ns := &model.Namespace{
		Path:               path,
		SubscriptionActive: eligible,
		DuoFeaturesEnabled: eligible,
	}
	require.NoError(t, db.Create(ns).Error)
	return ns
}

func InsertProject(t *testing.T, db *gorm.DB, ns *model.Namespace, path string) *model.Project {
	t.Helper()
	p := &model.Project{
		NamespaceID:        ns.ID,
		RootNamespaceID:    ns.ID,
		FullPath:           ns.Path + "/" + path,
		RepositoryStorage:  "default",
		DiskPath:           path + ".git",
		DuoFeaturesEnabled: true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func InsertEnabledNamespace(t *testing.T, db *gorm.DB, ns *model.Namespace, conn *model.Connection) *model.EnabledNamespace {
	t.Helper()
	en := &model.EnabledNamespace{
		NamespaceID:  ns.ID,
		ConnectionID: conn.ID,
		State:        constants.EnabledNamespaceStateReady,
	}
	require.NoError(t, db.Create(en).Error)
	return en
}

// InsertRepository 插入仓库记录, opts 可以修改默认字段
func InsertRepository(t *testing.T, db *gorm.DB, project *model.Project, conn *model.Connection, en *model.EnabledNamespace, opts ...func(*model.Repository)) *model.Repository {
	t.Helper()
	now := time.Now()
	repo := &model.Repository{
		ProjectID:     project.ID,
		ConnectionID:  conn.ID,
		State:         constants.RepositoryStatePending,
		LastQueriedAt: &now,
	}
	if en != nil {
		repo.EnabledNamespaceID = &en.ID
	}
	for _, opt := range opts {
		opt(repo)
	}
	require.NoError(t, db.Create(repo).Error)
	return repo
}

// ReloadRepository 重新读取仓库记录
func ReloadRepository(t *testing.T, db *gorm.DB, id int64) *model.Repository {
	t.Helper()
	var repo model.Repository
	require.NoError(t, db.First(&repo, id).Error)
	return &repo
}
