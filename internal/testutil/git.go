package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// GitRepo 测试用的本地仓库
type GitRepo struct {
	Path string
	repo *gogit.Repository
	n    int
}

// InitGitRepo 在 dir 下初始化仓库, dir 为空时使用临时目录
func InitGitRepo(t *testing.T, dir string) *GitRepo {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return &GitRepo{Path: dir, repo: repo}
}

// Commit 写入一个新文件并提交, 返回提交 sha
func (g *GitRepo) Commit(t *testing.T, message string) string {
	t.Helper()
	wt, err := g.repo.Worktree()
	require.NoError(t, err)

	g.n++
	name := filepath.Join("src", message+".txt")
	require.NoError(t, os.MkdirAll(filepath.Join(g.Path, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(g.Path, name), []byte(message), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(int64(1700000000+g.n), 0)},
	})
	require.NoError(t, err)
	return hash.String()
}

// Checkout 切换分支, create 为 true 时从 from 创建
func (g *GitRepo) Checkout(t *testing.T, branch string, create bool, from string) {
	t.Helper()
	wt, err := g.repo.Worktree()
	require.NoError(t, err)

	opts := &gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Create: create}
	if create && from != "" {
		opts.Hash = plumbing.NewHash(from)
	}
	require.NoError(t, wt.Checkout(opts))
}
