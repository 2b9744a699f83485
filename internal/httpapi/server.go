// Package httpapi exposes the routing core over HTTP: ticket submission and
// listing, agent registration and stats, preemption history, and circuit
// breaker control, adapted from the teacher's internal/gateway/gateway.go
// gin wiring (rate-limit + correlation-id middleware, route groups) with
// auth and websocket concerns dropped (no authorization/duplex-channel
// domain here) and order/position handlers replaced with ticket/agent ones.
package httpapi

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smart-support/routingcore/internal/broker"
	"github.com/smart-support/routingcore/internal/classifier"
	"github.com/smart-support/routingcore/internal/dedup"
	"github.com/smart-support/routingcore/internal/metrics"
	"github.com/smart-support/routingcore/internal/queue"
	"github.com/smart-support/routingcore/internal/registry"
	"github.com/smart-support/routingcore/internal/routing"
	"github.com/smart-support/routingcore/internal/ticket"
	"github.com/smart-support/routingcore/pkg/circuit"
)

// Config holds HTTP server tuning, mirroring the teacher's gateway Config.
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func (c *Config) applyDefaults() {
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = 100
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}
}

// RateLimiter is a sliding-window-per-key limiter, lifted directly from the
// teacher's gateway.RateLimiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := make([]time.Time, 0, len(rl.requests[key]))
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

// Server is the routing core's HTTP surface.
type Server struct {
	router *gin.Engine

	queue      *queue.PriorityQueue
	registry   *registry.Registry
	dedup      *dedup.Deduplicator
	router2    *routing.Coordinator // named to avoid clashing with gin.Engine field "router"
	breakers   *circuit.Group
	brk        broker.Broker
	primaryCls classifier.Classifier
	metrics    *metrics.Metrics

	highUrgencyThreshold float64
	generalistThreshold  float64
	categories           []string

	rateLimiter *RateLimiter
}

// NewServer wires every component into route handlers.
func NewServer(
	q *queue.PriorityQueue,
	reg *registry.Registry,
	dd *dedup.Deduplicator,
	coord *routing.Coordinator,
	breakers *circuit.Group,
	brk broker.Broker,
	primaryCls classifier.Classifier,
	m *metrics.Metrics,
	highUrgencyThreshold, generalistThreshold float64,
	categories []string,
	cfg Config,
) *Server {
	cfg.applyDefaults()

	s := &Server{
		router:               gin.Default(),
		queue:                q,
		registry:             reg,
		dedup:                dd,
		router2:              coord,
		breakers:             breakers,
		brk:                  brk,
		primaryCls:           primaryCls,
		metrics:              m,
		highUrgencyThreshold: highUrgencyThreshold,
		generalistThreshold:  generalistThreshold,
		categories:           categories,
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.rateLimitMiddleware())
	s.router.Use(s.tracingMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	s.router.POST("/tickets", s.createTicket)
	s.router.GET("/tickets", s.listTickets)
	s.router.GET("/tickets/:id", s.getTicket)
	s.router.POST("/tickets/:id/priority", s.updatePriority)
	s.router.POST("/tickets/:id/complete", s.completeTicket)

	s.router.POST("/agents", s.registerAgent)
	s.router.GET("/agents", s.listAgents)
	s.router.GET("/agents/stats", s.agentStats)

	s.router.GET("/preemption/history", s.preemptionHistory)
	s.router.GET("/assignment/history", s.assignmentHistory)

	s.router.GET("/circuit-breaker/stats", s.breakerStats)
	s.router.POST("/ml/circuit-breaker/toggle", s.toggleBreaker)
	s.router.POST("/ml/classify", s.classifyOnly)

	s.router.GET("/broker/stats", s.brokerStats)
	s.router.GET("/dedup/stats", s.dedupStats)
	s.router.GET("/dedup/incidents", s.listIncidents)
}

// Start runs the HTTP server on addr.
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Handler returns the underlying gin engine, e.g. for http.Server embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// createTicketRequest is the POST /tickets body.
type createTicketRequest struct {
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description" binding:"required"`
	CustomerID  string `json:"customer_id" binding:"required"`
}

func (s *Server) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.primaryCls.Classify(c.Request.Context(), req.Subject, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		return
	}

	ticketID := uuid.New().String()
	isDuplicate, masterID := s.dedup.AddTicket(ticketID, req.Subject, req.Description)

	t := &ticket.Ticket{
		ID:             ticketID,
		Subject:        req.Subject,
		Description:    req.Description,
		CustomerID:     req.CustomerID,
		Category:       ticket.Category(result.Category),
		Urgency:        result.Urgency,
		CreatedAt:      time.Now().UTC(),
		Status:         ticket.StatusQueued,
		MasterIncident: masterID,
	}
	s.queue.Enqueue(t)

	agentID, preempted := s.router2.Route(routing.TicketRequest{
		TicketID:    ticketID,
		Category:    result.Category,
		Urgency:     result.Urgency,
		Description: req.Description,
	})

	resp := gin.H{
		"ticket_id":   ticketID,
		"category":    result.Category,
		"urgency":     result.Urgency,
		"eta_seconds": s.router2.ComputeETA(result.Urgency),
	}
	if agentID != "" {
		t.Status = ticket.StatusAssigned
		t.AssignedAgentID = agentID
		s.queue.Remove(ticketID)
		resp["assigned_agent"] = agentID
	}
	if preempted != "" {
		resp["preempted_ticket"] = preempted
	}
	if isDuplicate {
		resp["master_incident"] = masterID
	}

	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) listTickets(c *gin.Context) {
	tickets := s.queue.GetAll()
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Urgency > tickets[j].Urgency })
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *Server) getTicket(c *gin.Context) {
	id := c.Param("id")
	t := s.queue.GetByID(id)
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

type updatePriorityRequest struct {
	Urgency *float64 `json:"urgency" binding:"required"`
}

func (s *Server) updatePriority(c *gin.Context) {
	var req updatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil || *req.Urgency < 0 || *req.Urgency > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "urgency must be in [0,1]"})
		return
	}
	if err := s.queue.UpdatePriority(c.Param("id"), *req.Urgency); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type completeTicketRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

func (s *Server) completeTicket(c *gin.Context) {
	var req completeTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok := s.router2.Complete(req.AgentID, c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

type registerAgentRequest struct {
	Name     string             `json:"name" binding:"required"`
	Skills   map[string]float64 `json:"skills" binding:"required"`
	Capacity int                `json:"capacity" binding:"required"`
}

func (s *Server) registerAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := s.registry.RegisterAgent(req.Name, req.Skills, req.Capacity)
	c.JSON(http.StatusCreated, gin.H{"agent_id": id})
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.registry.GetAllAgents()})
}

func (s *Server) agentStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.GetStats(s.generalistThreshold, s.categories))
}

func (s *Server) preemptionHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.router2.PreemptionHistory()})
}

func (s *Server) assignmentHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.router2.AssignmentHistory()})
}

func (s *Server) breakerStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": s.breakers.States()})
}

type toggleBreakerRequest struct {
	Name string `json:"name" binding:"required"`
	Open bool   `json:"open"`
}

func (s *Server) toggleBreaker(c *gin.Context) {
	var req toggleBreakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b := s.breakers.Get(req.Name)
	if req.Open {
		b.ForceOpen()
	} else {
		b.Reset()
	}
	c.JSON(http.StatusOK, gin.H{"name": req.Name, "state": b.State().String()})
}

type classifyOnlyRequest struct {
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (s *Server) classifyOnly(c *gin.Context) {
	var req classifyOnlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.primaryCls.Classify(c.Request.Context(), req.Subject, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) brokerStats(c *gin.Context) {
	stats, err := s.brk.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) dedupStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.dedup.GetStats())
}

func (s *Server) listIncidents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"incidents": s.dedup.GetAllMasterIncidents()})
}
