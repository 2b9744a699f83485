package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/broker"
	"github.com/smart-support/routingcore/internal/classifier"
	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/internal/dedup"
	"github.com/smart-support/routingcore/internal/metrics"
	"github.com/smart-support/routingcore/internal/queue"
	"github.com/smart-support/routingcore/internal/registry"
	"github.com/smart-support/routingcore/internal/routing"
	"github.com/smart-support/routingcore/pkg/circuit"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	fake := clock.NewFake(time.Now())
	q := queue.New()
	reg := registry.New(fake)
	dd := dedup.New(dedup.Config{Clock: fake})
	coord := routing.New(reg, routing.Config{Clock: fake})
	breakers := circuit.NewGroup(circuit.Config{Clock: fake})
	brk := broker.NewMemoryBroker(8)
	cls := classifier.NewKeywordClassifier()
	m := metrics.New()

	return NewServer(q, reg, dd, coord, breakers, brk, cls, m, 0.8, 0.5,
		[]string{"billing", "technical", "legal"}, Config{})
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer()
	rec := doJSON(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTicketQueuesWhenNoAgent(t *testing.T) {
	s := newTestServer()
	rec := doJSON(s, http.MethodPost, "/tickets", createTicketRequest{
		Subject:     "Invoice issue",
		Description: "payment failed",
		CustomerID:  "C1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Billing", resp["category"])
	assert.Nil(t, resp["assigned_agent"])
}

func TestRegisterAgentThenListAgents(t *testing.T) {
	s := newTestServer()
	rec := doJSON(s, http.MethodPost, "/agents", registerAgentRequest{
		Name:     "Alice",
		Skills:   map[string]float64{"billing": 0.9},
		Capacity: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec2 := doJSON(s, http.MethodGet, "/agents", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestCircuitBreakerToggleAndStats(t *testing.T) {
	s := newTestServer()
	rec := doJSON(s, http.MethodPost, "/ml/circuit-breaker/toggle", toggleBreakerRequest{Name: "classifier", Open: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := doJSON(s, http.MethodGet, "/circuit-breaker/stats", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer()
	rec := doJSON(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
