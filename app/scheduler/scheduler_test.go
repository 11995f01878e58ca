package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	fixtures "github.com/techiemaya-admin/lad-feature-campaigns-sub003/testing"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner records the passes it was asked to run
type fakeRunner struct {
	mu        sync.Mutex
	campaigns []uint
	leads     []uint
	errs      map[uint]error
	panicOn   uint
	inFlight  int
	maxFlight int
	delay     time.Duration
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{errs: make(map[uint]error)}
}

func (f *fakeRunner) ProcessCampaign(ctx context.Context, campaignID uint) (*businessflow.CampaignRunSummary, error) {
	f.mu.Lock()
	f.campaigns = append(f.campaigns, campaignID)
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	err := f.errs[campaignID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if campaignID == f.panicOn {
		panic("boom")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	return &businessflow.CampaignRunSummary{CampaignID: campaignID, ExecutionState: models.ExecutionStateActive}, nil
}

func (f *fakeRunner) ProcessLead(ctx context.Context, campaignID, leadID uint) (*businessflow.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, leadID)
	if err := f.errs[campaignID]; err != nil {
		return nil, err
	}
	return &businessflow.StepResult{Status: businessflow.StepStatusSuccess}, nil
}

func (f *fakeRunner) processed() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.campaigns)
}

func TestCampaignScheduler_RunOncePicksRunnableCampaigns(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fx := fixtures.NewFixtures()
	repo := fx.Store.Campaigns()

	active := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	due := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	require.NoError(t, repo.UpdateExecutionState(ctx, due.ID, models.ExecutionStateSleepingUntilNextDay, &now))
	sleeping := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	later := now.Add(time.Hour)
	require.NoError(t, repo.UpdateExecutionState(ctx, sleeping.ID, models.ExecutionStateSleepingUntilNextDay, &later))
	paused := fx.Campaign("t2", &models.LinkedInVisitSpec{})
	require.NoError(t, repo.UpdateStatus(ctx, paused.ID, models.CampaignStatusPaused))

	runner := newFakeRunner()
	s := NewCampaignScheduler(repo, runner, config.SchedulerConfig{Concurrency: 2}, func() time.Time { return now }, zaptest.NewLogger(t))

	assert.Equal(t, 2, s.RunOnce(ctx))
	assert.ElementsMatch(t, []uint{active.ID, due.ID}, runner.processed())
}

func TestCampaignScheduler_SerialByDefault(t *testing.T) {
	fx := fixtures.NewFixtures()
	for range 4 {
		fx.Campaign("t1", &models.LinkedInVisitSpec{})
	}

	runner := newFakeRunner()
	runner.delay = 10 * time.Millisecond
	s := NewCampaignScheduler(fx.Store.Campaigns(), runner, config.SchedulerConfig{}, nil, zaptest.NewLogger(t))

	assert.Equal(t, 4, s.RunOnce(context.Background()))
	assert.Len(t, runner.processed(), 4)
	assert.Equal(t, 1, runner.maxFlight)
}

func TestCampaignScheduler_BoundsConcurrency(t *testing.T) {
	fx := fixtures.NewFixtures()
	for range 6 {
		fx.Campaign("t1", &models.LinkedInVisitSpec{})
	}

	runner := newFakeRunner()
	runner.delay = 20 * time.Millisecond
	s := NewCampaignScheduler(fx.Store.Campaigns(), runner, config.SchedulerConfig{Concurrency: 2}, nil, zaptest.NewLogger(t))

	assert.Equal(t, 6, s.RunOnce(context.Background()))
	assert.Len(t, runner.processed(), 6)
	assert.LessOrEqual(t, runner.maxFlight, 2)
}

func TestCampaignScheduler_FailuresDoNotStopThePass(t *testing.T) {
	fx := fixtures.NewFixtures()
	busy := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	broken := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	panicking := fx.Campaign("t1", &models.LinkedInVisitSpec{})
	fine := fx.Campaign("t1", &models.LinkedInVisitSpec{})

	runner := newFakeRunner()
	runner.errs[busy.ID] = businessflow.ErrCampaignBusy
	runner.errs[broken.ID] = errors.New("database is gone")
	runner.panicOn = panicking.ID

	busyBefore := testutil.ToFloat64(campaignPassesTotal.WithLabelValues("busy"))
	errorBefore := testutil.ToFloat64(campaignPassesTotal.WithLabelValues("error"))
	okBefore := testutil.ToFloat64(campaignPassesTotal.WithLabelValues("ok"))

	s := NewCampaignScheduler(fx.Store.Campaigns(), runner, config.SchedulerConfig{}, nil, zaptest.NewLogger(t))
	assert.Equal(t, 4, s.RunOnce(context.Background()))

	assert.ElementsMatch(t, []uint{busy.ID, broken.ID, panicking.ID, fine.ID}, runner.processed())
	assert.Equal(t, busyBefore+1, testutil.ToFloat64(campaignPassesTotal.WithLabelValues("busy")))
	assert.Equal(t, errorBefore+2, testutil.ToFloat64(campaignPassesTotal.WithLabelValues("error")))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(campaignPassesTotal.WithLabelValues("ok")))
}

func TestCampaignScheduler_StartAndStop(t *testing.T) {
	fx := fixtures.NewFixtures()
	campaign := fx.Campaign("t1", &models.LinkedInVisitSpec{})

	runner := newFakeRunner()
	s := NewCampaignScheduler(fx.Store.Campaigns(), runner, config.SchedulerConfig{CampaignInterval: 10 * time.Millisecond}, nil, zaptest.NewLogger(t))

	stop := s.Start(context.Background())
	require.Eventually(t, func() bool { return len(runner.processed()) >= 2 }, time.Second, 5*time.Millisecond)
	stop()

	n := len(runner.processed())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, runner.processed(), n)
	assert.Equal(t, campaign.ID, runner.processed()[0])
}

type fakeReconciler struct {
	mu      sync.Mutex
	calls   int
	summary *businessflow.ReconcileSummary
	err     error
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) (*businessflow.ReconcileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.summary, f.err
}

func (f *fakeReconciler) ReconcileTenant(ctx context.Context, tenantID string) (*businessflow.ReconcileSummary, error) {
	return f.ReconcileAll(ctx)
}

func (f *fakeReconciler) HandleAcceptedConnection(ctx context.Context, tenantID string, conn services.Connection) (*businessflow.AcceptanceOutcome, error) {
	return &businessflow.AcceptanceOutcome{}, nil
}

func TestAcceptanceScheduler_Config(t *testing.T) {
	_, err := NewAcceptanceScheduler(&fakeReconciler{}, config.ReconcilerConfig{Cron: "not a schedule"}, nil)
	assert.Error(t, err)

	_, err = NewAcceptanceScheduler(&fakeReconciler{}, config.ReconcilerConfig{Timezone: "Nowhere/Special"}, nil)
	assert.Error(t, err)

	s, err := NewAcceptanceScheduler(&fakeReconciler{}, config.ReconcilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	stop := s.Start()
	stop()
}

func TestAcceptanceScheduler_RunOnce(t *testing.T) {
	reconciler := &fakeReconciler{summary: &businessflow.ReconcileSummary{
		Tenants:  2,
		Accepted: 3,
		Failures: []businessflow.ReconcileFailure{{TenantID: "t2", AccountID: 7, Error: "timeout"}},
	}}
	s, err := NewAcceptanceScheduler(reconciler, config.ReconcilerConfig{Cron: "*/5 * * * *"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	partialBefore := testutil.ToFloat64(reconcileRunsTotal.WithLabelValues("partial"))
	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Accepted)
	assert.Equal(t, partialBefore+1, testutil.ToFloat64(reconcileRunsTotal.WithLabelValues("partial")))

	reconciler.err = errors.New("accounts table unavailable")
	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, reconciler.calls)
}

func newTestQueue(t *testing.T, maxAttempts int) *services.RedisTaskQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return services.NewRedisTaskQueue(rc, "test:tasks", maxAttempts, time.Hour)
}

func TestTaskWorker_Handle(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, 2)
	runner := newFakeRunner()
	runner.errs[2] = businessflow.ErrLeadNotActive
	runner.errs[3] = errors.New("provider down")
	w := NewTaskWorker(queue, runner, config.QueueConfig{PollTimeout: 50 * time.Millisecond}, zaptest.NewLogger(t))

	t.Run("runs a campaign pass", func(t *testing.T) {
		require.NoError(t, queue.Enqueue(ctx, &services.Task{Kind: services.TaskKindRunCampaign, CampaignID: 1}))
		took, err := w.Poll(ctx)
		require.NoError(t, err)
		assert.True(t, took)
		assert.Equal(t, []uint{1}, runner.processed())
	})

	t.Run("nothing queued", func(t *testing.T) {
		took, err := w.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, took)
	})

	t.Run("permanent failure is dropped", func(t *testing.T) {
		require.NoError(t, w.Handle(ctx, &services.Task{ID: "a", Kind: services.TaskKindSendNow, CampaignID: 2, LeadID: 20}))
		require.NoError(t, w.Handle(ctx, &services.Task{ID: "b", Kind: "mystery", CampaignID: 2}))

		n, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("transient failure is retried then dead-lettered", func(t *testing.T) {
		task := &services.Task{ID: "c", Kind: services.TaskKindSendNow, CampaignID: 3, LeadID: 30}

		require.NoError(t, w.Handle(ctx, task))
		n, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, w.Handle(ctx, task))
		dead, err := queue.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, "c", dead[0].ID)
		assert.Equal(t, 2, dead[0].Attempts)
		assert.Equal(t, "provider down", dead[0].LastError)
	})
}

func TestTaskWorker_StartAndStop(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, 3)
	runner := newFakeRunner()
	w := NewTaskWorker(queue, runner, config.QueueConfig{Workers: 2, PollTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	stop := w.Start(ctx)
	for id := range uint(3) {
		require.NoError(t, queue.Enqueue(ctx, &services.Task{Kind: services.TaskKindRunCampaign, CampaignID: id + 1}))
	}
	require.Eventually(t, func() bool { return len(runner.processed()) == 3 }, 2*time.Second, 10*time.Millisecond)
	stop()

	assert.ElementsMatch(t, []uint{1, 2, 3}, runner.processed())
}
