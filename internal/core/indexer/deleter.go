package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/process"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// Deleter 删除仓库在 shard 中的数据, 不访问 git, 项目已删除时同样可用
type Deleter struct {
	base
}

func NewDeleter(cfg Config, runner process.Runner, connections repository.ConnectionRepository, log *zap.Logger) *Deleter {
	return &Deleter{base: base{cfg: cfg, runner: runner, connections: connections, log: log}}
}

// Run 成功时只记录日志, 状态由调用方修改
func (d *Deleter) Run(ctx context.Context, repo *model.Repository) error {
	conn, err := d.resolveConnection(ctx, repo)
	if err != nil {
		return err
	}
	connPayload, err := buildConnectionPayload(conn, d.cfg.AESKey)
	if err != nil {
		return err
	}
	opts := d.baseOptions(conn, repo.ProjectID, constants.IndexerOperationDelete)
	args, err := marshalArgs(conn.Adapter, connPayload, opts)
	if err != nil {
		return err
	}

	log := d.log.With(
		zap.Int64("repository_id", repo.ID),
		zap.Int64("project_id", repo.ProjectID),
		zap.String("partition_name", opts.PartitionName),
	)

	start := time.Now()
	result, err := d.runner.Run(ctx, process.Command{
		Path:          d.cfg.BinaryPath,
		Args:          args,
		Env:           []string{constants.IndexerStreamEnv},
		Timeout:       d.cfg.Timeout,
		CombineOutput: true,
	}, nil)
	metrics.IndexerRunDuration.WithLabelValues(constants.IndexerOperationDelete).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationDelete, "failure").Inc()
		return err
	}

	if !result.Success() {
		metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationDelete, "failure").Inc()
		log.Error("删除进程执行失败",
			zap.Int("exit_status", result.ExitStatus),
			zap.String("output", result.Output))
		return &pkgErrors.SubprocessError{
			Operation:  constants.IndexerOperationDelete,
			ExitStatus: result.ExitStatus,
			Output:     result.Output,
		}
	}

	metrics.IndexerRunsTotal.WithLabelValues(constants.IndexerOperationDelete, "success").Inc()
	log.Info("shard 数据删除完成", zap.String("output", result.Output))
	return nil
}
