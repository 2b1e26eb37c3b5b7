// Package indexer 调用外部索引进程, 负责索引范围计算和 shard 删除
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/process"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/git"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// Config 外部进程与仓库存储
type Config struct {
	BinaryPath     string
	Timeout        time.Duration
	PartitionCount int
	AESKey         string

	Storages      map[string]string
	GitalyAddress string
	GitalyToken   string
}

// Range 本次索引的提交范围
type Range struct {
	From  string
	To    string
	Force bool
}

type base struct {
	cfg         Config
	runner      process.Runner
	connections repository.ConnectionRepository
	log         *zap.Logger
}

// resolveConnection 仓库所在 connection, 不存在或未配置 adapter 返回 ConfigurationError
func (b *base) resolveConnection(ctx context.Context, repo *model.Repository) (*model.Connection, error) {
	conn := repo.Connection
	if conn == nil {
		var err error
		conn, err = b.connections.FindByID(ctx, repo.ConnectionID)
		if err != nil {
			if errors.Is(err, pkgErrors.ErrRecordNotFound) {
				return nil, pkgErrors.NewConfigurationError("connection %d not found for repository %d", repo.ConnectionID, repo.ID)
			}
			return nil, err
		}
	}
	if conn.Adapter == "" {
		return nil, pkgErrors.NewConfigurationError("connection %s has no adapter", conn.Name)
	}
	return conn, nil
}

func (b *base) baseOptions(conn *model.Connection, projectID int64, operation string) baseOptions {
	name, number := Partition(conn.Prefix, projectID, b.cfg.PartitionCount)
	return baseOptions{
		ProjectID:       projectID,
		PartitionName:   name,
		PartitionNumber: number,
		Timeout:         b.cfg.Timeout.String(),
		Operation:       operation,
	}
}

// Indexer 计算增量范围并运行外部索引器, 成功后推进 last_commit
type Indexer struct {
	base
	oracle   git.Oracle
	projects repository.ProjectRepository
	repos    repository.RepositoryRepository
}

func NewIndexer(
	cfg Config,
	runner process.Runner,
	oracle git.Oracle,
	connections repository.ConnectionRepository,
	projects repository.ProjectRepository,
	repos repository.RepositoryRepository,
	log *zap.Logger,
) *Indexer {
	return &Indexer{
		base:     base{cfg: cfg, runner: runner, connections: connections, log: log},
		oracle:   oracle,
		projects: projects,
		repos:    repos,
	}
}

// Run 运行一次索引, 每个合法 hash 在读取下一行之前同步交给 onHash
func (i *Indexer) Run(ctx context.Context, repo *model.Repository, onHash func(hash string) error) error {
	conn, err := i.resolveConnection(ctx, repo)
	if err != nil {
		return err
	}

	project := repo.Project
	if project == nil {
		project, err = i.projects.FindByID(ctx, repo.ProjectID)
		if err != nil {
			return fmt.Errorf("load project %d: %w", repo.ProjectID, err)
		}
	}

	repoPath, err := git.StoragePath(i.cfg.Storages, project.RepositoryStorage, project.DiskPath)
	if err != nil {
		return pkgErrors.NewConfigurationError("%v", err)
	}

	rng, err := i.ComputeRange(ctx, repoPath, repo.LastCommit)
	if err != nil {
		return err
	}

	connPayload, err := buildConnectionPayload(conn, i.cfg.AESKey)
	if err != nil {
		return err
	}
	opts := indexOptions{
		baseOptions:  i.baseOptions(conn, repo.ProjectID, constants.IndexerOperationIndex),
		FromSHA:      rng.From,
		ToSHA:        rng.To,
		ForceReindex: rng.Force,
		GitalyConfig: gitalyConfig{
			Storage:      project.RepositoryStorage,
			RelativePath: project.DiskPath,
			ProjectPath:  project.FullPath,
			Address:      i.cfg.GitalyAddress,
			Token:        i.cfg.GitalyToken,
		},
	}
	args, err := marshalArgs(conn.Adapter, connPayload, opts)
	if err != nil {
		return err
	}

	log := i.log.With(
		zap.Int64("repository_id", repo.ID),
		zap.Int64("project_id", repo.ProjectID),
		zap.String("from_sha", rng.From),
		zap.String("to_sha", rng.To),
		zap.Bool("force_reindex", rng.Force),
	)
	log.Info("开始索引仓库")

	parser := NewStreamParser(onHash)
	start := time.Now()
	result, err := i.runner.Run(ctx, process.Command{
		Path:    i.cfg.BinaryPath,
		Args:    args,
		Env:     []string{constants.IndexerStreamEnv},
		Timeout: i.cfg.Timeout,
	}, parser.Feed)
	metrics.IndexerRunDuration.WithLabelValues(constants.IndexerOperationIndex).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationIndex, "failure").Inc()
		return err
	}

	if !result.Success() {
		metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationIndex, "failure").Inc()
		log.Error("索引进程执行失败",
			zap.Int("exit_status", result.ExitStatus),
			zap.String("stderr", result.Output))
		return &pkgErrors.SubprocessError{
			Operation:  constants.IndexerOperationIndex,
			ExitStatus: result.ExitStatus,
			Output:     result.Output,
		}
	}
	metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationIndex, "success").Inc()

	to := rng.To
	if err := i.repos.Update(ctx, repo.ID, map[string]interface{}{"last_commit": to}); err != nil {
		return err
	}
	repo.LastCommit = &to

	log.Info("索引完成", zap.String("indexer_version", parser.Version))
	return nil
}

// ComputeRange 根据 last_commit 与 HEAD 的关系决定增量还是全量
func (i *Indexer) ComputeRange(ctx context.Context, repoPath string, lastCommit *string) (*Range, error) {
	head, err := i.oracle.HeadCommit(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	if lastCommit == nil || *lastCommit == "" || *lastCommit == constants.EmptyTreeSHA {
		return &Range{From: constants.EmptyTreeSHA, To: head}, nil
	}

	exists, err := i.oracle.CommitExists(ctx, repoPath, *lastCommit)
	if err != nil {
		return nil, err
	}
	if exists {
		ancestor, err := i.oracle.IsAncestor(ctx, repoPath, *lastCommit, head)
		if err != nil {
			return nil, err
		}
		if ancestor {
			return &Range{From: *lastCommit, To: head}, nil
		}
	}

	// 历史被改写
	return &Range{From: constants.EmptyTreeSHA, To: head, Force: true}, nil
}
