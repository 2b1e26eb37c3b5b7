package eligibility_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/core/eligibility"
	"code-indexer/internal/core/events"
	"code-indexer/internal/model"
	"code-indexer/internal/repository"
	"code-indexer/internal/testutil"
	"code-indexer/pkg/constants"
)

var saas = eligibility.Rules{Mode: constants.EligibilityModeSaaS}

func newPendingDeletionWorker(db *gorm.DB, bus messaging.Publisher, cfg eligibility.SweepConfig, checker capability.Checker) *eligibility.Worker {
	source := eligibility.NewPendingDeletionSource(
		repository.NewRepositoryRepository(db),
		repository.NewEnabledNamespaceRepository(db),
		repository.NewProjectRepository(db),
		coderepo.NewStateMachine(db, zap.NewNop()),
		6,
		zap.NewNop(),
	)
	return eligibility.NewWorker(events.MarkRepositoryAsPendingDeletion, source, cfg, checker, bus, zap.NewNop())
}

func newCreateWorker(db *gorm.DB, bus messaging.Publisher, rules eligibility.Rules, cfg eligibility.SweepConfig) *eligibility.Worker {
	source := eligibility.NewCreateEnabledNamespaceSource(rules,
		repository.NewConnectionRepository(db),
		repository.NewNamespaceRepository(db),
		repository.NewEnabledNamespaceRepository(db),
		zap.NewNop())
	return eligibility.NewWorker(events.CreateEnabledNamespace, source, cfg, capability.Static(true), bus, zap.NewNop())
}

func newInvalidWorker(db *gorm.DB, bus messaging.Publisher, rules eligibility.Rules, cfg eligibility.SweepConfig) *eligibility.Worker {
	source := eligibility.NewInvalidEnabledNamespaceSource(rules,
		repository.NewConnectionRepository(db),
		repository.NewEnabledNamespaceRepository(db),
		zap.NewNop())
	return eligibility.NewWorker(events.ProcessInvalidEnabledNamespace, source, cfg, capability.Static(true), bus, zap.NewNop())
}

func countState(t *testing.T, db *gorm.DB, state int8) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Repository{}).Where("state = ?", state).Count(&n).Error)
	return n
}

// runChain 处理事件直到不再发布续扫事件, 返回处理的事件数
func runChain(t *testing.T, w *eligibility.Worker, bus *messaging.MemoryBus, first events.Event) int {
	t.Helper()
	ev := first
	for i := 1; i <= 100; i++ {
		bus.Reset()
		require.NoError(t, w.Handle(context.Background(), ev))
		published := bus.PublishedEvents()
		if len(published) == 0 {
			return i
		}
		require.Len(t, published, 1)
		ev = published[0]
	}
	t.Fatal("sweep did not converge")
	return 0
}

func TestMarkPendingDeletion_ScenarioD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)

	var ids []int64
	for i := 0; i < 10; i++ {
		p := testutil.InsertProject(t, db, ns, fmt.Sprintf("p%d", i))
		ids = append(ids, testutil.InsertRepository(t, db, p, conn, nil).ID)
	}

	bus := messaging.NewMemoryBus()
	w := newPendingDeletionWorker(db, bus, eligibility.SweepConfig{Limit: 6, BatchSize: 3}, capability.Static(true))

	require.NoError(t, w.Handle(ctx, events.New(events.MarkRepositoryAsPendingDeletion)))
	for i, id := range ids {
		repo := testutil.ReloadRepository(t, db, id)
		if i < 6 {
			assert.Equal(t, constants.RepositoryStatePendingDeletion, repo.State, "repo %d", i)
			require.NotNil(t, repo.DeleteReason)
			assert.Equal(t, constants.DeleteReasonWithoutEnabledNamespace, *repo.DeleteReason)
		} else {
			assert.Equal(t, constants.RepositoryStatePending, repo.State, "repo %d", i)
		}
	}

	published := bus.PublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.MarkRepositoryAsPendingDeletion, published[0].Type)
	require.NotNil(t, published[0].LastProcessedID)
	assert.Equal(t, ids[5], *published[0].LastProcessedID)

	bus.Reset()
	require.NoError(t, w.Handle(ctx, published[0]))
	assert.Equal(t, int64(10), countState(t, db, constants.RepositoryStatePendingDeletion))
	assert.Empty(t, bus.PublishedEvents())
}

func TestMarkPendingDeletion_ReasonPriority(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)
	en := testutil.InsertEnabledNamespace(t, db, ns, conn)

	old := time.Now().AddDate(-1, 0, 0)
	missing := int64(9999)

	healthy := testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, "healthy"), conn, en)

	noENProject := testutil.InsertProject(t, db, ns, "no-en")
	require.NoError(t, db.Model(noENProject).Update("duo_features_enabled", false).Error)
	noEN := testutil.InsertRepository(t, db, noENProject, conn, nil, func(r *model.Repository) { r.LastQueriedAt = &old })

	danglingEN := testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, "dangling"), conn, nil, func(r *model.Repository) {
		r.EnabledNamespaceID = &missing
	})

	duoOffProject := testutil.InsertProject(t, db, ns, "duo-off")
	require.NoError(t, db.Model(duoOffProject).Update("duo_features_enabled", false).Error)
	duoOff := testutil.InsertRepository(t, db, duoOffProject, conn, en, func(r *model.Repository) { r.LastQueriedAt = &old })

	inactive := testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, "inactive"), conn, en, func(r *model.Repository) {
		r.LastQueriedAt = &old
	})

	bus := messaging.NewMemoryBus()
	w := newPendingDeletionWorker(db, bus, eligibility.SweepConfig{Limit: 100, BatchSize: 2}, capability.Static(true))
	require.NoError(t, w.Handle(ctx, events.New(events.MarkRepositoryAsPendingDeletion)))
	assert.Empty(t, bus.PublishedEvents())

	assert.Equal(t, constants.RepositoryStatePending, testutil.ReloadRepository(t, db, healthy.ID).State)

	cases := map[int64]string{
		noEN.ID:       constants.DeleteReasonWithoutEnabledNamespace,
		danglingEN.ID: constants.DeleteReasonWithoutEnabledNamespace,
		duoOff.ID:     constants.DeleteReasonDuoFeaturesDisabled,
		inactive.ID:   constants.DeleteReasonNoRecentActivity,
	}
	for id, reason := range cases {
		repo := testutil.ReloadRepository(t, db, id)
		assert.Equal(t, constants.RepositoryStatePendingDeletion, repo.State)
		require.NotNil(t, repo.DeleteReason)
		assert.Equal(t, reason, *repo.DeleteReason, "repository %d", id)
	}
}

func TestMarkPendingDeletion_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)
	en := testutil.InsertEnabledNamespace(t, db, ns, conn)
	for i := 0; i < 4; i++ {
		var attach *model.EnabledNamespace
		if i%2 == 0 {
			attach = en
		}
		testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, fmt.Sprintf("p%d", i)), conn, attach)
	}

	bus := messaging.NewMemoryBus()
	w := newPendingDeletionWorker(db, bus, eligibility.SweepConfig{Limit: 10, BatchSize: 3}, capability.Static(true))

	require.NoError(t, w.Handle(ctx, events.New(events.MarkRepositoryAsPendingDeletion)))
	var first []model.Repository
	require.NoError(t, db.Order("id").Find(&first).Error)

	require.NoError(t, w.Handle(ctx, events.New(events.MarkRepositoryAsPendingDeletion)))
	var second []model.Repository
	require.NoError(t, db.Order("id").Find(&second).Error)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].State, second[i].State)
		assert.Equal(t, first[i].DeleteReason, second[i].DeleteReason)
	}
	assert.Equal(t, int64(2), countState(t, db, constants.RepositoryStatePendingDeletion))
	assert.Empty(t, bus.PublishedEvents())
}

// seedPartitions 两个 connection 交替插入, 使两个分区的 id 交错
func seedPartitions(t *testing.T, db *gorm.DB) {
	t.Helper()
	active := testutil.InsertConnection(t, db, "es", true)
	old := testutil.InsertConnection(t, db, "old", false)
	ns := testutil.InsertNamespace(t, db, "group", true)
	en := testutil.InsertEnabledNamespace(t, db, ns, active)

	for i := 0; i < 12; i++ {
		conn := active
		if i%2 == 1 {
			conn = old
		}
		var attach *model.EnabledNamespace
		if i%3 == 0 {
			attach = en
		}
		testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, fmt.Sprintf("p%d", i)), conn, attach)
	}
}

func snapshot(t *testing.T, db *gorm.DB) map[int64]int8 {
	t.Helper()
	var repos []model.Repository
	require.NoError(t, db.Find(&repos).Error)
	out := make(map[int64]int8, len(repos))
	for _, r := range repos {
		out[r.ID] = r.State
	}
	return out
}

func TestMarkPendingDeletion_Resumable(t *testing.T) {
	whole := testutil.SetupTestDB(t)
	seedPartitions(t, whole)
	wholeBus := messaging.NewMemoryBus()
	events1 := runChain(t, newPendingDeletionWorker(whole, wholeBus, eligibility.SweepConfig{Limit: 100, BatchSize: 5}, capability.Static(true)),
		wholeBus, events.New(events.MarkRepositoryAsPendingDeletion))
	assert.Equal(t, 1, events1)

	chunked := testutil.SetupTestDB(t)
	seedPartitions(t, chunked)
	chunkedBus := messaging.NewMemoryBus()
	eventsN := runChain(t, newPendingDeletionWorker(chunked, chunkedBus, eligibility.SweepConfig{Limit: 2, BatchSize: 2}, capability.Static(true)),
		chunkedBus, events.New(events.MarkRepositoryAsPendingDeletion))
	assert.Greater(t, eventsN, 1)

	assert.Equal(t, snapshot(t, whole), snapshot(t, chunked))
	assert.Equal(t, int64(8), countState(t, chunked, constants.RepositoryStatePendingDeletion))
}

func TestSweep_CapabilityDisabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)
	repo := testutil.InsertRepository(t, db, testutil.InsertProject(t, db, ns, "app"), conn, nil)

	bus := messaging.NewMemoryBus()
	w := newPendingDeletionWorker(db, bus, eligibility.SweepConfig{Limit: 1, BatchSize: 1}, capability.Static(false))
	require.NoError(t, w.Handle(context.Background(), events.New(events.MarkRepositoryAsPendingDeletion)))

	assert.Equal(t, constants.RepositoryStatePending, testutil.ReloadRepository(t, db, repo.ID).State)
	assert.Empty(t, bus.PublishedEvents())
}

func TestCreateEnabledNamespace(t *testing.T) {
	ctx := context.Background()

	t.Run("saas", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		conn := testutil.InsertConnection(t, db, "es", true)
		eligible := testutil.InsertNamespace(t, db, "paid", true)
		testutil.InsertNamespace(t, db, "free", false)
		sub := testutil.InsertNamespace(t, db, "paid-sub", true)
		require.NoError(t, db.Model(sub).Update("parent_id", eligible.ID).Error)
		already := testutil.InsertNamespace(t, db, "already", true)
		testutil.InsertEnabledNamespace(t, db, already, conn)

		bus := messaging.NewMemoryBus()
		w := newCreateWorker(db, bus, saas, eligibility.SweepConfig{Limit: 10, BatchSize: 2})
		require.NoError(t, w.Handle(ctx, events.New(events.CreateEnabledNamespace)))

		ids, err := repository.NewEnabledNamespaceRepository(db).ExistingNamespaceIDs(ctx, conn.ID,
			[]int64{eligible.ID, sub.ID, already.ID, eligible.ID + 1})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{eligible.ID, already.ID}, ids)
		assert.Empty(t, bus.PublishedEvents())

		// 再次执行没有新动作
		var before int64
		require.NoError(t, db.Model(&model.EnabledNamespace{}).Count(&before).Error)
		require.NoError(t, w.Handle(ctx, events.New(events.CreateEnabledNamespace)))
		var after int64
		require.NoError(t, db.Model(&model.EnabledNamespace{}).Count(&after).Error)
		assert.Equal(t, before, after)
	})

	t.Run("instance ineligible skips", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		testutil.InsertConnection(t, db, "es", true)
		testutil.InsertNamespace(t, db, "group", true)

		rules := eligibility.Rules{Mode: constants.EligibilityModeInstance, InstanceLicensed: true}
		require.NoError(t, newCreateWorker(db, messaging.NewMemoryBus(), rules, eligibility.SweepConfig{}).
			Handle(ctx, events.New(events.CreateEnabledNamespace)))

		var n int64
		require.NoError(t, db.Model(&model.EnabledNamespace{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("instance eligible uses namespace duo switch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		conn := testutil.InsertConnection(t, db, "es", true)
		on := testutil.InsertNamespace(t, db, "on", false)
		require.NoError(t, db.Model(on).Update("duo_features_enabled", true).Error)
		testutil.InsertNamespace(t, db, "off", false)

		rules := eligibility.Rules{Mode: constants.EligibilityModeInstance, InstanceLicensed: true, InstanceDuoFeaturesEnabled: true}
		require.NoError(t, newCreateWorker(db, messaging.NewMemoryBus(), rules, eligibility.SweepConfig{}).
			Handle(ctx, events.New(events.CreateEnabledNamespace)))

		var list []model.EnabledNamespace
		require.NoError(t, db.Find(&list).Error)
		require.Len(t, list, 1)
		assert.Equal(t, on.ID, list[0].NamespaceID)
		assert.Equal(t, conn.ID, list[0].ConnectionID)
		assert.Equal(t, constants.EnabledNamespaceStatePending, list[0].State)
	})

	t.Run("no active connection", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		testutil.InsertConnection(t, db, "old", false)
		testutil.InsertNamespace(t, db, "group", true)

		require.NoError(t, newCreateWorker(db, messaging.NewMemoryBus(), saas, eligibility.SweepConfig{}).
			Handle(ctx, events.New(events.CreateEnabledNamespace)))
		var n int64
		require.NoError(t, db.Model(&model.EnabledNamespace{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("limit publishes continuation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		testutil.InsertConnection(t, db, "es", true)
		for i := 0; i < 5; i++ {
			testutil.InsertNamespace(t, db, fmt.Sprintf("g%d", i), true)
		}

		bus := messaging.NewMemoryBus()
		w := newCreateWorker(db, bus, saas, eligibility.SweepConfig{Limit: 2, BatchSize: 10})
		assert.Equal(t, 3, runChain(t, w, bus, events.New(events.CreateEnabledNamespace)))

		var n int64
		require.NoError(t, db.Model(&model.EnabledNamespace{}).Count(&n).Error)
		assert.Equal(t, int64(5), n)
	})
}

func TestProcessInvalidEnabledNamespace(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	conn := testutil.InsertConnection(t, db, "es", true)

	valid := testutil.InsertNamespace(t, db, "valid", true)
	lapsed := testutil.InsertNamespace(t, db, "lapsed", true)
	validEN := testutil.InsertEnabledNamespace(t, db, valid, conn)
	lapsedEN := testutil.InsertEnabledNamespace(t, db, lapsed, conn)
	repo := testutil.InsertRepository(t, db, testutil.InsertProject(t, db, lapsed, "app"), conn, lapsedEN)

	require.NoError(t, db.Model(lapsed).Update("subscription_active", false).Error)

	bus := messaging.NewMemoryBus()
	w := newInvalidWorker(db, bus, saas, eligibility.SweepConfig{Limit: 10, BatchSize: 1})
	require.NoError(t, w.Handle(ctx, events.New(events.ProcessInvalidEnabledNamespace)))

	ens := repository.NewEnabledNamespaceRepository(db)
	_, err := ens.FindByID(ctx, validEN.ID)
	require.NoError(t, err)
	_, err = ens.FindByID(ctx, lapsedEN.ID)
	assert.Error(t, err)
	assert.Nil(t, testutil.ReloadRepository(t, db, repo.ID).EnabledNamespaceID)

	// 幂等
	require.NoError(t, w.Handle(ctx, events.New(events.ProcessInvalidEnabledNamespace)))
	_, err = ens.FindByID(ctx, validEN.ID)
	require.NoError(t, err)
	assert.Empty(t, bus.PublishedEvents())

	// 实例模式下实例失去许可, 所有记录无效
	rules := eligibility.Rules{Mode: constants.EligibilityModeInstance, InstanceLicensed: false, InstanceDuoFeaturesEnabled: true}
	require.NoError(t, newInvalidWorker(db, bus, rules, eligibility.SweepConfig{}).
		Handle(ctx, events.New(events.ProcessInvalidEnabledNamespace)))
	_, err = ens.FindByID(ctx, validEN.ID)
	assert.Error(t, err)
}

func TestRepositorySync(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	conn := testutil.InsertConnection(t, db, "es", true)
	ns := testutil.InsertNamespace(t, db, "group", true)
	en := testutil.InsertEnabledNamespace(t, db, ns, conn)
	require.NoError(t, db.Model(en).Update("state", constants.EnabledNamespaceStatePending).Error)

	fresh := testutil.InsertProject(t, db, ns, "fresh")
	duoOff := testutil.InsertProject(t, db, ns, "duo-off")
	require.NoError(t, db.Model(duoOff).Update("duo_features_enabled", false).Error)

	gone := testutil.InsertProject(t, db, ns, "gone")
	reason := constants.DeleteReasonNoRecentActivity
	deleted := testutil.InsertRepository(t, db, gone, conn, nil, func(r *model.Repository) {
		r.State = constants.RepositoryStateDeleted
		r.DeleteReason = &reason
	})

	other := testutil.InsertNamespace(t, db, "other", true)
	testutil.InsertProject(t, db, other, "not-enabled")

	repos := repository.NewRepositoryRepository(db)
	syncer := eligibility.NewRepositorySync(eligibility.SweepConfig{Limit: 10, BatchSize: 2}, capability.Static(true),
		repository.NewConnectionRepository(db), repository.NewEnabledNamespaceRepository(db),
		repository.NewProjectRepository(db), repos, coderepo.NewStateMachine(db, zap.NewNop()), zap.NewNop())

	n, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	created, err := repos.FindByProjectAndConnection(ctx, fresh.ID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RepositoryStatePending, created.State)
	require.NotNil(t, created.EnabledNamespaceID)
	assert.Equal(t, en.ID, *created.EnabledNamespaceID)

	_, err = repos.FindByProjectAndConnection(ctx, duoOff.ID, conn.ID)
	assert.Error(t, err)

	revived := testutil.ReloadRepository(t, db, deleted.ID)
	assert.Equal(t, constants.RepositoryStatePending, revived.State)
	assert.Nil(t, revived.DeleteReason)
	require.NotNil(t, revived.EnabledNamespaceID)
	assert.Equal(t, en.ID, *revived.EnabledNamespaceID)

	reloaded, err := repository.NewEnabledNamespaceRepository(db).FindByID(ctx, en.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.EnabledNamespaceStateReady, reloaded.State)

	n, err = syncer.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
