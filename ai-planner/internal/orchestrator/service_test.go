package orchestrator_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/canonical"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/contextstore"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/cost"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/decision"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/events"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/orchestrator"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/provider"
)

// MockStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Store(ctx context.Context, rec models.PlanRecord) (models.ContextKey, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(models.ContextKey), args.Error(1)
}
func (m *MockStore) Retrieve(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(models.PlanRecord), args.Error(1)
}
func (m *MockStore) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.StoredPlan), args.Error(1)
}
func (m *MockStore) Purge(ctx context.Context, policy contextstore.RetentionPolicy) (int, error) {
	args := m.Called(ctx, policy)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

type failingCatalog struct{ err error }

func (f failingCatalog) Load(ctx context.Context) ([]provider.Capability, error) {
	return nil, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ev events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingPublisher) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

var fixedNow = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func newService(store contextstore.Store, catalog provider.Catalog, cfg orchestrator.Config) *orchestrator.Service {
	predictor := cost.NewRateCardPredictor(cost.DefaultRateCard())
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	if cfg.Logger == nil {
		l, _ := test.NewNullLogger()
		cfg.Logger = l
	}
	return orchestrator.New(store, catalog, decision.New(predictor), predictor, cfg)
}

func defaultCatalog() provider.Catalog {
	return provider.NewStaticCatalog(provider.DefaultCapabilities())
}

func budget(v float64) *float64 { return &v }

func overBudgetRequest() models.ResourceRequest {
	return models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{"cpu": 4, "memory": 8, "hours": 24},
		Budget:       budget(5.00),
	}
}

func TestPlanStoresDeniedPlan(t *testing.T) {
	store := contextstore.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := newService(store, defaultCatalog(), orchestrator.Config{Publisher: pub})
	ctx := context.Background()

	res, err := svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)

	assert.Equal(t, models.StatusDenied, res.Record.Decision.Status)
	assert.Contains(t, res.Record.Decision.Reason, "budget")
	assert.InDelta(t, 38.40, res.Record.Cost.Total, 1e-9)
	assert.Equal(t, "aws", res.Record.Provider.Provider)
	assert.Equal(t, fixedNow, res.Record.CreatedAt)

	got, err := svc.Get(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.Record, got)

	ok, err := canonical.VerifyPlan(got)
	require.NoError(t, err)
	assert.True(t, ok)

	evs := pub.all()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypePlanCreated, evs[0].Type)
	assert.Equal(t, res.Key, evs[0].Key)
}

func TestPlanRejectsInvalidRequestWithoutStoring(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, defaultCatalog(), orchestrator.Config{})

	_, err := svc.Plan(context.Background(), models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{"gpus": 2},
	})
	assert.True(t, models.IsValidation(err))
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestPlanRejectsOversizedRequirements(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, defaultCatalog(), orchestrator.Config{})

	_, err := svc.Plan(context.Background(), models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{"cpu": 1e200, "memory": 1e200},
	})
	assert.True(t, models.IsValidation(err))
	assert.False(t, models.IsCollaboratorFault(err))
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestPlanAtRequirementCeilingIsStored(t *testing.T) {
	store := contextstore.NewMemoryStore()
	svc := newService(store, defaultCatalog(), orchestrator.Config{})

	res, err := svc.Plan(context.Background(), models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{
			"cpu":    models.MaxRequirement,
			"memory": models.MaxRequirement,
			"hours":  models.MaxRequirement,
		},
	})
	require.NoError(t, err)
	assert.False(t, math.IsInf(res.Record.Cost.Total, 0))
	assert.NotEmpty(t, res.Record.Digest)
}

func TestPlanCatalogFaultStoresNothing(t *testing.T) {
	store := new(MockStore)
	pub := &recordingPublisher{}
	svc := newService(store, failingCatalog{err: errors.New("catalog unreachable")}, orchestrator.Config{Publisher: pub})

	_, err := svc.Plan(context.Background(), overBudgetRequest())

	var fault *models.CollaboratorFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, orchestrator.CollaboratorCatalog, fault.Collaborator)
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
	assert.Empty(t, pub.all())
}

func TestPlanStoreFaultIsTyped(t *testing.T) {
	store := new(MockStore)
	store.On("Store", mock.Anything, mock.AnythingOfType("models.PlanRecord")).
		Return(models.ContextKey(0), errors.New("disk full"))
	pub := &recordingPublisher{}
	svc := newService(store, defaultCatalog(), orchestrator.Config{Publisher: pub})

	_, err := svc.Plan(context.Background(), overBudgetRequest())

	assert.True(t, models.IsCollaboratorFault(err))
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, pub.all())
	store.AssertExpectations(t)
}

func TestPlanConcurrentIdenticalRequests(t *testing.T) {
	store := contextstore.NewMemoryStore()
	svc := newService(store, defaultCatalog(), orchestrator.Config{})
	ctx := context.Background()
	req := models.ResourceRequest{
		ResourceType: models.ResourceStorage,
		Requirements: map[string]float64{"size_gb": 250},
		Region:       "europe",
	}

	var (
		wg      sync.WaitGroup
		results [2]models.PlanResult
		errs    [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Plan(ctx, req)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Key, results[1].Key)
	for _, r := range results {
		got, err := svc.Get(ctx, r.Key)
		require.NoError(t, err)
		assert.Equal(t, r.Record, got)
		assert.Equal(t, "gcp", got.Provider.Provider)
	}
}

func TestPlanDoesNotAliasCallerRequest(t *testing.T) {
	svc := newService(contextstore.NewMemoryStore(), defaultCatalog(), orchestrator.Config{})
	req := overBudgetRequest()

	res, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)
	req.Requirements["cpu"] = 99

	got, err := svc.Get(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Request.Requirements["cpu"])
}

func TestGetUnknownKey(t *testing.T) {
	svc := newService(contextstore.NewMemoryStore(), defaultCatalog(), orchestrator.Config{})
	_, err := svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, models.IsCollaboratorFault(err))
}

func TestGetLogsDigestMismatch(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := contextstore.NewMemoryStore()
	svc := newService(store, defaultCatalog(), orchestrator.Config{Logger: logger})
	ctx := context.Background()

	res, err := svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)
	_, err = svc.Get(ctx, res.Key)
	require.NoError(t, err)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level)
	}

	tampered := res.Record.Clone()
	tampered.Cost.Total = 1
	mockStore := new(MockStore)
	mockStore.On("Retrieve", mock.Anything, res.Key).Return(tampered, nil)
	svc = newService(mockStore, defaultCatalog(), orchestrator.Config{Logger: logger})
	hook.Reset()

	got, err := svc.Get(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, tampered, got)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, res.Key.String(), hook.LastEntry().Data["key"])
}

func TestRecent(t *testing.T) {
	svc := newService(contextstore.NewMemoryStore(), defaultCatalog(), orchestrator.Config{})
	ctx := context.Background()
	first, err := svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)
	second, err := svc.Plan(ctx, models.ResourceRequest{ResourceType: models.ResourceNetwork})
	require.NoError(t, err)

	none, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	plans, err := svc.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, second.Key, plans[0].Key)
	assert.Equal(t, first.Key, plans[1].Key)

	_, err = svc.Recent(ctx, -1)
	assert.True(t, models.IsValidation(err))
}

func TestRefineStoredKeepsParent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(contextstore.NewMemoryStore(), defaultCatalog(), orchestrator.Config{Publisher: pub})
	ctx := context.Background()

	parent, err := svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)

	child, err := svc.RefineStored(ctx, parent.Key)
	require.NoError(t, err)
	assert.NotEqual(t, parent.Key, child.Key)
	require.NotNil(t, child.Record.ParentKey)
	assert.Equal(t, parent.Key, *child.Record.ParentKey)
	require.NotNil(t, child.Record.Optimization)
	assert.Equal(t, models.StatusDenied, child.Record.Decision.Status)
	assert.NotEqual(t, parent.Record.Digest, child.Record.Digest)

	again, err := svc.Get(ctx, parent.Key)
	require.NoError(t, err)
	assert.Nil(t, again.Optimization)
	assert.Equal(t, parent.Record, again)

	evs := pub.all()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypePlanRefined, evs[1].Type)

	_, err = svc.RefineStored(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApplyRetention(t *testing.T) {
	store := contextstore.NewMemoryStore()
	svc := newService(store, defaultCatalog(), orchestrator.Config{
		Retention: contextstore.RetentionPolicy{MaxRecords: 1},
	})
	ctx := context.Background()
	first, err := svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)
	_, err = svc.Plan(ctx, overBudgetRequest())
	require.NoError(t, err)

	removed, err := svc.ApplyRetention(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = svc.Get(ctx, first.Key)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApplyRetentionDisabledByDefault(t *testing.T) {
	store := new(MockStore)
	svc := newService(store, defaultCatalog(), orchestrator.Config{})

	removed, err := svc.ApplyRetention(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	store.AssertNotCalled(t, "Purge", mock.Anything, mock.Anything)
}

func TestReadyAndProviders(t *testing.T) {
	svc := newService(contextstore.NewMemoryStore(), defaultCatalog(), orchestrator.Config{})
	assert.NoError(t, svc.Ready(context.Background()))
	caps, err := svc.Providers(context.Background())
	require.NoError(t, err)
	assert.Len(t, caps, 3)

	broken := newService(contextstore.NewMemoryStore(), failingCatalog{err: errors.New("bad yaml")}, orchestrator.Config{})
	assert.True(t, models.IsCollaboratorFault(broken.Ready(context.Background())))
}

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.WarnLevel)
	m.Run()
}
