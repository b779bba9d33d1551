package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus answers instant queries with canned vectors keyed by a
// substring of the query expression.
func fakePrometheus(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		body := `[]`
		for key, result := range answers {
			if strings.Contains(query, key) {
				body = result
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, body)
	}))
}

func vectorSample(labels, value string) string {
	return fmt.Sprintf(`[{"metric":%s,"value":[1700000000,%q]}]`, labels, value)
}

func TestGetRoleMetrics(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`type="prompt"`:      vectorSample(`{}`, "1200"),
		`type="completion"`:  vectorSample(`{}`, "3400"),
		`llm_requests_total`: vectorSample(`{}`, "7"),
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := q.GetRoleMetrics(context.Background(), "writer")
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Requests)
	assert.Equal(t, int64(1200), m.PromptTokens)
	assert.Equal(t, int64(3400), m.CompletionTokens)
	assert.Equal(t, int64(4600), m.TotalTokens)
}

func TestGetRoleMetricsEmptyResult(t *testing.T) {
	srv := fakePrometheus(t, nil)
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := q.GetRoleMetrics(context.Background(), "modeler")
	require.NoError(t, err)
	assert.Zero(t, m.TotalTokens)
	assert.Zero(t, m.Requests)
}

func TestGetWorkflowMetricsSkipsIdleRoles(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`llm_requests_total{role="master"}`:                  vectorSample(`{}`, "5"),
		`llm_tokens_total{role="master", type="prompt"}`:     vectorSample(`{}`, "800"),
		`llm_tokens_total{role="master", type="completion"}`: vectorSample(`{}`, "400"),
		`llm_requests_total{role="writer"}`:                  vectorSample(`{}`, "2"),
		`llm_tokens_total{role="writer", type="prompt"}`:     vectorSample(`{}`, "300"),
		`llm_tokens_total{role="writer", type="completion"}`: vectorSample(`{}`, "900"),
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	report, err := q.GetWorkflowMetrics(context.Background(), []string{"master", "researcher", "writer"})
	require.NoError(t, err)

	// Researcher recorded nothing and is dropped; input order is preserved.
	require.Len(t, report, 2)
	assert.Equal(t, "master", report[0].Role)
	assert.Equal(t, int64(1200), report[0].TotalTokens)
	assert.Equal(t, "writer", report[1].Role)
	assert.Equal(t, int64(2), report[1].Requests)
}

func TestGetRoleMetricsByModel(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"group by (model)":   vectorSample(`{"model":"claude-sonnet-4-20250514"}`, "1"),
		`type="prompt"`:      vectorSample(`{}`, "100"),
		`type="completion"`:  vectorSample(`{}`, "200"),
		`llm_requests_total`: vectorSample(`{}`, "3"),
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	byModel, err := q.GetRoleMetricsByModel(context.Background(), "master")
	require.NoError(t, err)
	require.Len(t, byModel, 1)

	m := byModel["claude-sonnet-4-20250514"]
	require.NotNil(t, m)
	assert.Equal(t, int64(300), m.TotalTokens)
	assert.Equal(t, int64(3), m.Requests)
}
