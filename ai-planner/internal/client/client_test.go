package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/auth"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/client"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/contextstore"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/cost"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/decision"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/httpserver"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/orchestrator"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/provider"
)

const secret = "client-secret"

func newServer(t *testing.T) *httptest.Server {
	logger, _ := test.NewNullLogger()
	predictor := cost.NewRateCardPredictor(cost.DefaultRateCard())
	svc := orchestrator.New(contextstore.NewMemoryStore(),
		provider.NewStaticCatalog(provider.DefaultCapabilities()),
		decision.New(predictor), predictor, orchestrator.Config{Logger: logger})
	v, err := auth.NewVerifier(secret, "", "")
	require.NoError(t, err)
	srv := httptest.NewServer(httpserver.New(svc, httpserver.Options{Verifier: v, Logger: logger}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": auth.DefaultWriteScope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL+"/", client.WithToken(token(t)))
	ctx := context.Background()

	budget := 5.0
	timeline := 48 * time.Hour
	res, err := c.Plan(ctx, models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{"cpu": 4, "memory": 8, "hours": 24},
		Budget:       &budget,
		Timeline:     &timeline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, res.Record.Decision.Status)
	require.NotNil(t, res.Record.Request.Timeline)
	assert.Equal(t, timeline, *res.Record.Request.Timeline)

	got, err := c.Get(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.Record.Digest, got.Digest)

	refined, err := c.Refine(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.Key, *refined.Record.ParentKey)

	recent, err := c.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	caps, err := c.Providers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, caps)
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	_, err := client.New(srv.URL).Plan(ctx, models.ResourceRequest{ResourceType: models.ResourceStorage})
	assert.True(t, client.IsUnauthorized(err))

	_, err = client.New(srv.URL).Get(ctx, 123)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = client.New(srv.URL, client.WithToken(token(t))).Plan(ctx, models.ResourceRequest{
		ResourceType: models.ResourceCompute,
		Requirements: map[string]float64{"tpu": 1},
	})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "PLANNER_BAD_REQUEST", apiErr.Code)
}
