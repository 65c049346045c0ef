package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: CheckStatusHealthy}
}

func unhealthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: CheckStatusUnhealthy, Message: "connection refused"}
}

func TestHealthRegistry_Check(t *testing.T) {
	registry := NewHealthRegistry()
	registry.Register("database", healthyCheck)
	registry.Register("broker", unhealthyCheck)

	results := registry.Check(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, CheckStatusHealthy, results["database"].Status)
	assert.Equal(t, CheckStatusUnhealthy, results["broker"].Status)
	assert.Equal(t, "connection refused", results["broker"].Message)
	assert.False(t, results["database"].Timestamp.IsZero())
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		results  map[string]CheckResult
		expected CheckStatus
	}{
		{
			name:     "empty is healthy",
			results:  map[string]CheckResult{},
			expected: CheckStatusHealthy,
		},
		{
			name: "all healthy",
			results: map[string]CheckResult{
				"a": {Status: CheckStatusHealthy},
				"b": {Status: CheckStatusHealthy},
			},
			expected: CheckStatusHealthy,
		},
		{
			name: "one degraded",
			results: map[string]CheckResult{
				"a": {Status: CheckStatusHealthy},
				"b": {Status: CheckStatusDegraded},
			},
			expected: CheckStatusDegraded,
		},
		{
			name: "unhealthy wins",
			results: map[string]CheckResult{
				"a": {Status: CheckStatusDegraded},
				"b": {Status: CheckStatusUnhealthy},
			},
			expected: CheckStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OverallStatus(tt.results))
		})
	}
}

func TestHealthRegistry_Handler(t *testing.T) {
	t.Run("healthy registry returns 200", func(t *testing.T) {
		registry := NewHealthRegistry()
		registry.Register("database", healthyCheck)

		rec := httptest.NewRecorder()
		registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy component returns 503", func(t *testing.T) {
		registry := NewHealthRegistry()
		registry.Register("broker", unhealthyCheck)

		rec := httptest.NewRecorder()
		registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
