package eligibility

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// activePartition 活跃 connection 作为唯一分区, 没有活跃 connection 时不扫描
func activePartition(ctx context.Context, connections repository.ConnectionRepository) ([]int64, error) {
	conn, err := connections.FindActive(ctx)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []int64{conn.ID}, nil
}

// CreateEnabledNamespaceSource 为新满足条件的顶层命名空间创建 EnabledNamespace
type CreateEnabledNamespaceSource struct {
	rules             Rules
	connections       repository.ConnectionRepository
	namespaces        repository.NamespaceRepository
	enabledNamespaces repository.EnabledNamespaceRepository
	log               *zap.Logger
}

func NewCreateEnabledNamespaceSource(
	rules Rules,
	connections repository.ConnectionRepository,
	namespaces repository.NamespaceRepository,
	enabledNamespaces repository.EnabledNamespaceRepository,
	log *zap.Logger,
) *CreateEnabledNamespaceSource {
	return &CreateEnabledNamespaceSource{
		rules:             rules,
		connections:       connections,
		namespaces:        namespaces,
		enabledNamespaces: enabledNamespaces,
		log:               log,
	}
}

func (s *CreateEnabledNamespaceSource) Name() string {
	return "create_enabled_namespace"
}

func (s *CreateEnabledNamespaceSource) Partitions(ctx context.Context) ([]int64, error) {
	if !s.rules.InstanceEligible() {
		s.log.Debug("[Sweep] 实例未满足条件, 跳过创建启用命名空间")
		return nil, nil
	}
	return activePartition(ctx, s.connections)
}

func (s *CreateEnabledNamespaceSource) ScanBatch(ctx context.Context, connectionID, cursor int64, size, remaining int) (Batch, error) {
	namespaces, err := s.namespaces.ListTopLevelAfter(ctx, cursor, size)
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{Exhausted: len(namespaces) < size}

	eligibleIDs := lo.FilterMap(namespaces, func(ns *model.Namespace, _ int) (int64, bool) {
		return ns.ID, s.rules.NamespaceEligible(ns)
	})
	existing, err := s.enabledNamespaces.ExistingNamespaceIDs(ctx, connectionID, eligibleIDs)
	if err != nil {
		return Batch{}, err
	}
	pending := lo.Without(eligibleIDs, existing...)
	pendingSet := lo.SliceToMap(pending, func(id int64) (int64, struct{}) { return id, struct{}{} })

	for _, ns := range namespaces {
		batch.LastID = ns.ID
		if _, ok := pendingSet[ns.ID]; !ok {
			continue
		}

		created, err := s.enabledNamespaces.CreateIfAbsent(ctx, &model.EnabledNamespace{
			NamespaceID:  ns.ID,
			ConnectionID: connectionID,
			State:        constants.EnabledNamespaceStatePending,
		})
		if err != nil {
			return batch, err
		}
		if !created {
			continue
		}
		metrics.SweepActionsTotal.WithLabelValues(s.Name(), "created").Inc()
		s.log.Info("[Sweep] 创建启用命名空间",
			zap.Int64("namespace_id", ns.ID),
			zap.Int64("connection_id", connectionID))

		batch.Actions++
		if batch.Actions >= remaining {
			batch.Exhausted = false
			return batch, nil
		}
	}
	return batch, nil
}

// InvalidEnabledNamespaceSource 删除命名空间已不满足条件的 EnabledNamespace
type InvalidEnabledNamespaceSource struct {
	rules             Rules
	connections       repository.ConnectionRepository
	enabledNamespaces repository.EnabledNamespaceRepository
	log               *zap.Logger
}

func NewInvalidEnabledNamespaceSource(
	rules Rules,
	connections repository.ConnectionRepository,
	enabledNamespaces repository.EnabledNamespaceRepository,
	log *zap.Logger,
) *InvalidEnabledNamespaceSource {
	return &InvalidEnabledNamespaceSource{
		rules:             rules,
		connections:       connections,
		enabledNamespaces: enabledNamespaces,
		log:               log,
	}
}

func (s *InvalidEnabledNamespaceSource) Name() string {
	return "process_invalid_enabled_namespace"
}

func (s *InvalidEnabledNamespaceSource) Partitions(ctx context.Context) ([]int64, error) {
	return activePartition(ctx, s.connections)
}

// ScanBatch 实例不满足条件时所有记录都视为无效; 命名空间已被删除同样无效
func (s *InvalidEnabledNamespaceSource) ScanBatch(ctx context.Context, connectionID, cursor int64, size, remaining int) (Batch, error) {
	list, err := s.enabledNamespaces.ListAfter(ctx, connectionID, cursor, size)
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{Exhausted: len(list) < size}

	for _, en := range list {
		batch.LastID = en.ID
		if s.rules.NamespaceEligible(en.Namespace) {
			continue
		}

		deleted, err := s.enabledNamespaces.Delete(ctx, en.ID)
		if err != nil {
			return batch, err
		}
		if !deleted {
			continue
		}
		metrics.SweepActionsTotal.WithLabelValues(s.Name(), "deleted").Inc()
		s.log.Info("[Sweep] 删除无效启用命名空间",
			zap.Int64("enabled_namespace_id", en.ID),
			zap.Int64("namespace_id", en.NamespaceID))

		batch.Actions++
		if batch.Actions >= remaining {
			batch.Exhausted = false
			return batch, nil
		}
	}
	return batch, nil
}
