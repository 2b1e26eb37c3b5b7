package indexer_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"code-indexer/internal/adapter/process"
	"code-indexer/internal/core/indexer"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/git"
	"code-indexer/internal/repository"
	"code-indexer/internal/testutil"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

const validHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type fixture struct {
	db      *gorm.DB
	runner  *process.FakeRunner
	indexer *indexer.Indexer
	deleter *indexer.Deleter
	git     *testutil.GitRepo
	repo    *model.Repository
	project *model.Project
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	storage := t.TempDir()

	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)
	en := testutil.InsertEnabledNamespace(t, db, ns, conn)
	project := testutil.InsertProject(t, db, ns, "app")
	repo := testutil.InsertRepository(t, db, project, conn, en)

	gitRepo := testutil.InitGitRepo(t, filepath.Join(storage, project.DiskPath))

	cfg := indexer.Config{
		BinaryPath:     "/usr/local/bin/code-indexer",
		Timeout:        30 * time.Minute,
		PartitionCount: 24,
		Storages:       map[string]string{"default": storage},
		GitalyAddress:  "unix:/var/opt/gitaly.socket",
		GitalyToken:    "token",
	}
	runner := &process.FakeRunner{}
	connections := repository.NewConnectionRepository(db)

	return &fixture{
		db:     db,
		runner: runner,
		indexer: indexer.NewIndexer(cfg, runner, git.NewGoGitOracle(), connections,
			repository.NewProjectRepository(db), repository.NewRepositoryRepository(db), zap.NewNop()),
		deleter: indexer.NewDeleter(cfg, runner, connections, zap.NewNop()),
		git:     gitRepo,
		repo:    repo,
		project: project,
	}
}

func (f *fixture) options(t *testing.T) map[string]interface{} {
	t.Helper()
	call, ok := f.runner.LastCall()
	require.True(t, ok)
	require.Len(t, call.Args, 6)
	assert.Equal(t, "-adapter", call.Args[0])
	assert.Equal(t, "elasticsearch", call.Args[1])
	assert.Equal(t, "-options", call.Args[4])

	var opts map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(call.Args[5]), &opts))
	return opts
}

func TestIndexer_InitialRange(t *testing.T) {
	f := setup(t)
	head := f.git.Commit(t, "one")
	f.runner.Lines = []string{"--section-start--", "id", validHash}

	var hashes []string
	err := f.indexer.Run(context.Background(), f.repo, func(h string) error {
		hashes = append(hashes, h)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{validHash}, hashes)

	opts := f.options(t)
	assert.Equal(t, constants.EmptyTreeSHA, opts["from_sha"])
	assert.Equal(t, head, opts["to_sha"])
	assert.Equal(t, false, opts["force_reindex"])
	assert.Equal(t, "index", opts["operation"])
	assert.Equal(t, float64(f.project.ID), opts["project_id"])
	assert.Equal(t, "30m0s", opts["timeout"])

	gitaly, ok := opts["gitaly_config"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "default", gitaly["storage"])
	assert.Equal(t, f.project.DiskPath, gitaly["relative_path"])
	assert.Equal(t, f.project.FullPath, gitaly["project_path"])

	call, _ := f.runner.LastCall()
	assert.Contains(t, call.Env, constants.IndexerStreamEnv)

	reloaded := testutil.ReloadRepository(t, f.db, f.repo.ID)
	require.NotNil(t, reloaded.LastCommit)
	assert.Equal(t, head, *reloaded.LastCommit)
}

func TestIndexer_IncrementalRange(t *testing.T) {
	f := setup(t)
	c1 := f.git.Commit(t, "one")
	f.git.Checkout(t, "rewritten", true, c1)
	orphan := f.git.Commit(t, "rewritten")
	f.git.Checkout(t, "master", false, "")
	head := f.git.Commit(t, "two")

	cases := []struct {
		name      string
		last      string
		wantFrom  string
		wantForce bool
	}{
		{"ancestor", c1, c1, false},
		{"up to date", head, head, false},
		{"not an ancestor", orphan, constants.EmptyTreeSHA, true},
		{"missing from history", "1234567890123456789012345678901234567890", constants.EmptyTreeSHA, true},
		{"empty tree", constants.EmptyTreeSHA, constants.EmptyTreeSHA, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			last := tc.last
			f.repo.LastCommit = &last
			require.NoError(t, f.indexer.Run(context.Background(), f.repo, func(string) error { return nil }))

			opts := f.options(t)
			assert.Equal(t, tc.wantFrom, opts["from_sha"])
			assert.Equal(t, head, opts["to_sha"])
			assert.Equal(t, tc.wantForce, opts["force_reindex"])
		})
	}
}

func TestIndexer_SubprocessFailure(t *testing.T) {
	f := setup(t)
	f.git.Commit(t, "one")
	f.runner.ExitStatus = 1
	f.runner.Output = "disk full"

	err := f.indexer.Run(context.Background(), f.repo, func(string) error { return nil })

	var subErr *pkgErrors.SubprocessError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 1, subErr.ExitStatus)
	assert.Contains(t, subErr.Error(), "disk full")
	assert.Nil(t, testutil.ReloadRepository(t, f.db, f.repo.ID).LastCommit)
}

func TestIndexer_MissingAdapter(t *testing.T) {
	f := setup(t)
	f.git.Commit(t, "one")
	require.NoError(t, f.db.Model(&model.Connection{}).Where("id = ?", f.repo.ConnectionID).Update("adapter", "").Error)

	err := f.indexer.Run(context.Background(), f.repo, func(string) error { return nil })

	var cfgErr *pkgErrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, f.runner.CallCount())
}

func TestDeleter_Run(t *testing.T) {
	f := setup(t)
	// 项目已删除
	require.NoError(t, f.db.Delete(&model.Project{}, f.project.ID).Error)

	require.NoError(t, f.deleter.Run(context.Background(), f.repo))

	opts := f.options(t)
	assert.Equal(t, "delete", opts["operation"])
	assert.Equal(t, float64(f.project.ID), opts["project_id"])
	assert.NotContains(t, opts, "from_sha")
	assert.NotContains(t, opts, "gitaly_config")

	call, _ := f.runner.LastCall()
	assert.True(t, call.CombineOutput)

	// 成功不修改状态
	assert.Equal(t, constants.RepositoryStatePending, testutil.ReloadRepository(t, f.db, f.repo.ID).State)
}

func TestDeleter_Failure(t *testing.T) {
	f := setup(t)
	f.runner.ExitStatus = 2
	f.runner.Output = "index not found\npermission denied"

	err := f.deleter.Run(context.Background(), f.repo)

	var subErr *pkgErrors.SubprocessError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "delete", subErr.Operation)
	assert.Contains(t, subErr.Output, "permission denied")
}
