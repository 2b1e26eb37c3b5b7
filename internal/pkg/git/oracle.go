// Package git 读取本地仓库的提交历史, 用于计算增量索引范围
package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var ErrEmptyRepository = errors.New("repository has no HEAD commit")

// Oracle 提交祖先关系查询
type Oracle interface {
	HeadCommit(ctx context.Context, repoPath string) (string, error)
	CommitExists(ctx context.Context, repoPath, sha string) (bool, error)
	// IsAncestor ancestor 是否在 descendant 的历史中, 同一个提交返回 true
	IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error)
}

// StoragePath 拼接仓库在 storage 下的绝对路径
func StoragePath(storages map[string]string, storage, relativePath string) (string, error) {
	root, ok := storages[storage]
	if !ok || root == "" {
		return "", fmt.Errorf("storage %q is not configured", storage)
	}
	return filepath.Join(root, relativePath), nil
}

// GoGitOracle 基于 go-git 直接读取仓库目录
type GoGitOracle struct{}

func NewGoGitOracle() *GoGitOracle {
	return &GoGitOracle{}
}

func (o *GoGitOracle) open(repoPath string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", repoPath, err)
	}
	return repo, nil
}

func (o *GoGitOracle) HeadCommit(ctx context.Context, repoPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo, err := o.open(repoPath)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrEmptyRepository
		}
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

func (o *GoGitOracle) CommitExists(ctx context.Context, repoPath, sha string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !plumbing.IsHash(sha) {
		return false, nil
	}
	repo, err := o.open(repoPath)
	if err != nil {
		return false, err
	}
	_, err = repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup commit %s: %w", sha, err)
	}
	return true, nil
}

func (o *GoGitOracle) IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	repo, err := o.open(repoPath)
	if err != nil {
		return false, err
	}
	a, err := commit(repo, ancestor)
	if err != nil || a == nil {
		return false, err
	}
	d, err := commit(repo, descendant)
	if err != nil || d == nil {
		return false, err
	}
	ok, err := a.IsAncestor(d)
	if err != nil {
		return false, fmt.Errorf("walk history: %w", err)
	}
	return ok, nil
}

// commit 提交不存在时返回 nil, nil
func commit(repo *gogit.Repository, sha string) (*object.Commit, error) {
	if !plumbing.IsHash(sha) {
		return nil, nil
	}
	c, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup commit %s: %w", sha, err)
	}
	return c, nil
}
