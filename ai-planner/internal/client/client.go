package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/provider"
)

// Client talks to the ai-planner HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. A 404 matches models.ErrNotFound.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai-planner returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

type planPayload struct {
	ResourceType  string             `json:"resourceType"`
	Requirements  map[string]float64 `json:"requirements,omitempty"`
	Region        string             `json:"region,omitempty"`
	Compliance    []string           `json:"compliance,omitempty"`
	Budget        *float64           `json:"budget,omitempty"`
	TimelineHours *float64           `json:"timelineHours,omitempty"`
}

func (c *Client) Plan(ctx context.Context, req models.ResourceRequest) (models.PlanResult, error) {
	payload := planPayload{
		ResourceType: string(req.ResourceType),
		Requirements: req.Requirements,
		Region:       req.Region,
		Compliance:   req.Compliance,
		Budget:       req.Budget,
	}
	if req.Timeline != nil {
		h := req.Timeline.Hours()
		payload.TimelineHours = &h
	}
	var out models.PlanResult
	err := c.do(ctx, http.MethodPost, "/plans", payload, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	var out models.StoredPlan
	err := c.do(ctx, http.MethodGet, "/plans/"+url.PathEscape(key.String()), nil, &out)
	return out.Record, err
}

func (c *Client) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	var out struct {
		Plans []models.StoredPlan `json:"plans"`
	}
	err := c.do(ctx, http.MethodGet, "/plans?limit="+strconv.Itoa(limit), nil, &out)
	return out.Plans, err
}

func (c *Client) Refine(ctx context.Context, key models.ContextKey) (models.PlanResult, error) {
	var out models.PlanResult
	err := c.do(ctx, http.MethodPost, "/plans/"+url.PathEscape(key.String())+"/refine", nil, &out)
	return out, err
}

func (c *Client) Providers(ctx context.Context) ([]provider.Capability, error) {
	var out struct {
		Providers []provider.Capability `json:"providers"`
	}
	err := c.do(ctx, http.MethodGet, "/providers", nil, &out)
	return out.Providers, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var parsed struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
			apiErr.Code = parsed.Code
			if parsed.Error != "" {
				apiErr.Message = parsed.Error
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
