// Package metrics queries aggregated LLM usage from a Prometheus server
// scraping the workflow's /metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RoleMetrics is the aggregated usage for one workflow role.
type RoleMetrics struct {
	Role             string `json:"role"`
	Requests         int64  `json:"requests"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService reads usage aggregates from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against a Prometheus base URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetRoleMetrics aggregates token and request counts for one role across
// all models.
func (q *QueryService) GetRoleMetrics(ctx context.Context, role string) (*RoleMetrics, error) {
	metrics := &RoleMetrics{Role: role}

	requests, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_requests_total{role=%q})`, role))
	if err != nil {
		return nil, fmt.Errorf("failed to query request count: %w", err)
	}
	metrics.Requests = requests

	prompt, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{role=%q, type="prompt"})`, role))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = prompt

	completion, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{role=%q, type="completion"})`, role))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = completion

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	return metrics, nil
}

// GetWorkflowMetrics aggregates usage for the given roles, preserving their
// order. Roles with no recorded activity are omitted from the report.
func (q *QueryService) GetWorkflowMetrics(ctx context.Context, roles []string) ([]*RoleMetrics, error) {
	report := make([]*RoleMetrics, 0, len(roles))
	for _, role := range roles {
		m, err := q.GetRoleMetrics(ctx, role)
		if err != nil {
			return nil, err
		}
		if m.Requests == 0 && m.TotalTokens == 0 {
			continue
		}
		report = append(report, m)
	}
	return report, nil
}

// GetRoleMetricsByModel breaks a role's usage down per model.
func (q *QueryService) GetRoleMetricsByModel(ctx context.Context, role string) (map[string]*RoleMetrics, error) {
	modelsResult, _, err := q.queryAPI.Query(ctx,
		fmt.Sprintf(`group by (model) (llm_tokens_total{role=%q})`, role), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["model"]; ok {
				models = append(models, string(name))
			}
		}
	}

	result := make(map[string]*RoleMetrics, len(models))
	for _, modelName := range models {
		m := &RoleMetrics{Role: role}

		m.PromptTokens, err = q.scalarQuery(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{role=%q, model=%q, type="prompt"})`, role, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}

		m.CompletionTokens, err = q.scalarQuery(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{role=%q, model=%q, type="completion"})`, role, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}

		m.Requests, err = q.scalarQuery(ctx,
			fmt.Sprintf(`sum(llm_requests_total{role=%q, model=%q})`, role, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query requests for model %s: %w", modelName, err)
		}

		m.TotalTokens = m.PromptTokens + m.CompletionTokens
		result[modelName] = m
	}

	return result, nil
}

// scalarQuery runs an instant query expected to yield a single-sample
// vector; an empty result is zero.
func (q *QueryService) scalarQuery(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
