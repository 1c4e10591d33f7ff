package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/canonical"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/contextstore"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/cost"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/decision"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/events"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/provider"
)

// Collaborator names carried by CollaboratorFault.
const (
	CollaboratorCatalog   = "provider catalog"
	CollaboratorStore     = "context store"
	CollaboratorCanonical = "canonical encoder"
)

// Evaluator is the decision engine contract.
type Evaluator interface {
	Evaluate(req models.ResourceRequest) models.Decision
}

type Config struct {
	// Publisher receives committed plans; nil disables events.
	Publisher events.Publisher
	// Retention is applied by ApplyRetention only.
	Retention contextstore.RetentionPolicy
	Now       func() time.Time
	Logger    logrus.FieldLogger
}

type Service struct {
	store     contextstore.Store
	catalog   provider.Catalog
	engine    Evaluator
	predictor cost.Predictor
	publisher events.Publisher
	retention contextstore.RetentionPolicy
	now       func() time.Time
	log       logrus.FieldLogger
}

func New(store contextstore.Store, catalog provider.Catalog, engine Evaluator, predictor cost.Predictor, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		engine:    engine,
		predictor: predictor,
		publisher: cfg.Publisher,
		retention: cfg.Retention,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
}

// Plan runs one request through provider selection, policy evaluation and cost
// estimation and stores the merged record. Denials are stored like approvals.
// A collaborator failure returns *models.CollaboratorFault and stores nothing.
func (s *Service) Plan(ctx context.Context, req models.ResourceRequest) (models.PlanResult, error) {
	if err := req.Validate(); err != nil {
		return models.PlanResult{}, err
	}
	req = req.Clone()

	caps, err := s.catalog.Load(ctx)
	if err != nil {
		return models.PlanResult{}, fault(CollaboratorCatalog, err)
	}

	selection := provider.NewSelector(caps).Select(req)
	verdict := s.engine.Evaluate(req)
	estimate := s.predictor.Estimate(decision.ResolveConfiguration(req))

	rec := models.PlanRecord{
		Request:   req,
		Decision:  verdict,
		Provider:  selection,
		Cost:      estimate,
		CreatedAt: s.now().UTC(),
	}
	res, err := s.commit(ctx, rec, events.TypePlanCreated)
	if err != nil {
		return models.PlanResult{}, err
	}
	s.log.WithFields(logrus.Fields{
		"key":      res.Key.String(),
		"type":     req.ResourceType,
		"status":   verdict.Status,
		"provider": selection.Provider,
		"cost":     estimate.Total,
	}).Info("[orchestrator] plan stored")
	return res, nil
}

// RefineStored refines a stored plan and stores the result as a new record
// pointing back at its parent. The parent is left untouched.
func (s *Service) RefineStored(ctx context.Context, key models.ContextKey) (models.PlanResult, error) {
	parent, err := s.Get(ctx, key)
	if err != nil {
		return models.PlanResult{}, err
	}
	refined := Refine(parent)
	refined.ParentKey = &key
	refined.CreatedAt = s.now().UTC()

	res, err := s.commit(ctx, refined, events.TypePlanRefined)
	if err != nil {
		return models.PlanResult{}, err
	}
	s.log.WithFields(logrus.Fields{
		"key":    res.Key.String(),
		"parent": key.String(),
		"score":  refined.Optimization.Score,
	}).Info("[orchestrator] refined plan stored")
	return res, nil
}

// commit digests and stores rec as a single write, then announces it.
func (s *Service) commit(ctx context.Context, rec models.PlanRecord, eventType string) (models.PlanResult, error) {
	digest, err := canonical.PlanDigest(rec)
	if err != nil {
		return models.PlanResult{}, fault(CollaboratorCanonical, err)
	}
	rec.Digest = digest

	key, err := s.store.Store(ctx, rec)
	if err != nil {
		return models.PlanResult{}, fault(CollaboratorStore, err)
	}
	if s.publisher != nil {
		s.publisher.Publish(events.NewEvent(eventType, key, rec))
	}
	return models.PlanResult{Key: key, Record: rec}, nil
}

// Get returns models.ErrNotFound for unknown or purged keys. A record whose
// content no longer matches its digest is still returned and logged.
func (s *Service) Get(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	rec, err := s.store.Retrieve(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.PlanRecord{}, err
		}
		return models.PlanRecord{}, fault(CollaboratorStore, err)
	}
	if ok, err := canonical.VerifyPlan(rec); err != nil || !ok {
		s.log.WithFields(logrus.Fields{"key": key.String(), "digest": rec.Digest}).
			Warn("[orchestrator] stored plan does not match its digest")
	}
	return rec, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	if limit < 0 {
		return nil, &models.ValidationError{Field: "limit", Msg: "must not be negative"}
	}
	plans, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fault(CollaboratorStore, err)
	}
	return plans, nil
}

// Providers returns the current capability table.
func (s *Service) Providers(ctx context.Context) ([]provider.Capability, error) {
	caps, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, fault(CollaboratorCatalog, err)
	}
	return caps, nil
}

// ApplyRetention purges according to the configured policy. A zero policy
// removes nothing.
func (s *Service) ApplyRetention(ctx context.Context) (int, error) {
	if !s.retention.Enabled() {
		return 0, nil
	}
	removed, err := s.store.Purge(ctx, s.retention)
	if err != nil {
		return removed, fault(CollaboratorStore, err)
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Info("[orchestrator] retention purge")
	}
	return removed, nil
}

// Ready checks the store and catalog are reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fault(CollaboratorStore, err)
	}
	if _, err := s.catalog.Load(ctx); err != nil {
		return fault(CollaboratorCatalog, err)
	}
	return nil
}

func fault(collaborator string, err error) error {
	return &models.CollaboratorFault{Collaborator: collaborator, Err: err}
}
