package decision

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/cost"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// Denial reasons. Callers may match on these prefixes.
const (
	ReasonUnsupportedType = "unsupported resource type"
	ReasonExceedsBudget   = "exceeds budget"
	ReasonExceedsTimeline = "exceeds timeline"
)

type Engine struct {
	predictor cost.Predictor
	guard     Guard
	newID     func() string
}

type Option func(*Engine)

// WithIDGenerator replaces the UUID generator used for decision IDs.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func WithGuard(g Guard) Option {
	return func(e *Engine) { e.guard = g }
}

func New(predictor cost.Predictor, opts ...Option) *Engine {
	e := &Engine{
		predictor: predictor,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate never fails for a validated request. A denial is a Decision with
// status denied and a reason, not an error. Apart from the ID the result is a
// deterministic function of the request.
func (e *Engine) Evaluate(req models.ResourceRequest) models.Decision {
	d := models.Decision{
		ID:              e.newID(),
		Recommendations: []string{},
	}

	if !req.ResourceType.Supported() {
		d.Configuration = ResolveConfiguration(req)
		return deny(d, fmt.Sprintf("%s %q", ReasonUnsupportedType, req.ResourceType))
	}

	cfg := ResolveConfiguration(req)
	d.Configuration = cfg

	if e.guard != nil {
		if verdict := e.guard.Check(cfg); !verdict.Allowed {
			return deny(d, fmt.Sprintf("%s: %s", verdict.PolicyID, verdict.Reason))
		}
	}

	if req.Timeline != nil {
		if limit := req.Timeline.Hours(); cfg.Dimensions[models.DimHours] > limit {
			return deny(d, fmt.Sprintf("%s: %.2f hours requested > %.2f hours allowed",
				ReasonExceedsTimeline, cfg.Dimensions[models.DimHours], limit))
		}
	}

	estimate := e.predictor.Estimate(cfg)
	if req.Budget != nil && estimate.Total > *req.Budget {
		return deny(d, fmt.Sprintf("%s: estimated %.2f %s > budget %.2f %s",
			ReasonExceedsBudget, estimate.Total, estimate.Currency, *req.Budget, estimate.Currency))
	}

	d.Status = models.StatusApproved
	d.Recommendations = recommend(req, cfg, estimate)
	logrus.WithFields(logrus.Fields{
		"decision_id":   d.ID,
		"resource_type": cfg.ResourceType,
		"estimate":      estimate.Total,
	}).Debug("[decision] approved")
	return d
}

func deny(d models.Decision, reason string) models.Decision {
	d.Status = models.StatusDenied
	d.Reason = reason
	logrus.WithFields(logrus.Fields{
		"decision_id":   d.ID,
		"resource_type": d.Configuration.ResourceType,
	}).Debugf("[decision] denied: %s", reason)
	return d
}
