package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"polyedge/internal/engine"
	"polyedge/internal/event"
	"polyedge/internal/ledger"
	"polyedge/internal/logger"
	"polyedge/internal/risk"
	"polyedge/internal/store/gormstore"
	"polyedge/internal/trigger"
)

// Router exposes the engine's query and control surface: events in,
// trigger CRUD, position and risk management.
type Router struct {
	Engine   *engine.Engine
	Registry *trigger.Registry
	Gate     *risk.Gate
	Book     *ledger.Ledger
	Store    *gormstore.Store
	Audit    *trigger.AuditTrail
}

// Register mounts the API routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/events", r.handleSubmitEvent)
	group.GET("/events", r.handleListEvents)

	group.GET("/triggers", r.handleListTriggers)
	group.POST("/triggers", r.handleCreateTrigger)
	group.GET("/triggers/:id", r.handleGetTrigger)
	group.PUT("/triggers/:id", r.handleUpdateTrigger)
	group.DELETE("/triggers/:id", r.handleDeleteTrigger)
	group.POST("/triggers/:id/enable", r.handleEnableTrigger(true))
	group.POST("/triggers/:id/disable", r.handleEnableTrigger(false))

	group.GET("/positions", r.handleListPositions)
	group.POST("/positions/:id/close", r.handleClosePosition)

	group.GET("/orders", r.handleListOrders)
	group.POST("/orders/:id/cancel", r.handleCancelOrder)

	group.GET("/risk", r.handleRiskStatus)
	group.POST("/risk/pause", r.handleRiskPause)
	group.POST("/risk/resume", r.handleRiskResume)
	group.POST("/risk/reset", r.handleRiskReset)

	group.GET("/metrics", r.handleMetrics)
	group.GET("/audit", r.handleAudit)
}

func (r *Router) handleSubmitEvent(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	var ev event.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		logger.Warnf("[api] event bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	status, err := r.Engine.SubmitEvent(c.Request.Context(), ev)
	if err != nil {
		logger.Warnf("[api] event rejected ip=%s source=%s err=%v", c.ClientIP(), ev.Source, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if status == engine.SubmitDuplicate {
		c.JSON(http.StatusOK, gin.H{"status": string(status), "id": ev.ID})
		return
	}
	logger.Debugf("[api] event accepted ip=%s id=%s category=%s source=%s", c.ClientIP(), ev.ID, ev.Category, ev.Source)
	c.JSON(http.StatusAccepted, gin.H{"status": string(status), "id": ev.ID})
}

func (r *Router) handleListEvents(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	f := event.Filter{
		Category:    event.Category(strings.TrimSpace(c.Query("category"))),
		Source:      strings.TrimSpace(c.Query("source")),
		MinSeverity: event.Severity(strings.TrimSpace(c.Query("min_severity"))),
		MarketID:    strings.TrimSpace(c.Query("market_id")),
		Limit:       limit,
	}
	if since, err := strconv.ParseInt(c.Query("since"), 10, 64); err == nil && since > 0 {
		f.Since = time.Unix(since, 0).UTC()
	}
	events := r.Engine.Ring().Query(f)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (r *Router) handleListTriggers(c *gin.Context) {
	triggers := r.Registry.List()
	c.JSON(http.StatusOK, gin.H{"triggers": triggers, "count": len(triggers)})
}

func (r *Router) handleCreateTrigger(c *gin.Context) {
	var t trigger.Trigger
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := r.Registry.Add(t)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.persistTrigger(created)
	logger.Infof("[api] trigger created ip=%s id=%s name=%s", c.ClientIP(), created.ID, created.Name)
	c.JSON(http.StatusCreated, gin.H{"trigger": created})
}

func (r *Router) handleGetTrigger(c *gin.Context) {
	t, ok := r.Registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger": t})
}

func (r *Router) handleUpdateTrigger(c *gin.Context) {
	var t trigger.Trigger
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = c.Param("id")
	updated, err := r.Registry.Update(t)
	if err != nil {
		if errors.Is(err, trigger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.persistTrigger(updated)
	logger.Infof("[api] trigger updated ip=%s id=%s name=%s", c.ClientIP(), updated.ID, updated.Name)
	c.JSON(http.StatusOK, gin.H{"trigger": updated})
}

func (r *Router) handleDeleteTrigger(c *gin.Context) {
	id := c.Param("id")
	if err := r.Registry.Remove(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
		return
	}
	if r.Store != nil {
		if err := r.Store.DeleteTrigger(id); err != nil {
			logger.Warnf("[api] trigger delete persist failed id=%s err=%v", id, err)
		}
	}
	logger.Infof("[api] trigger deleted ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleEnableTrigger(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := r.Registry.SetEnabled(id, enabled); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		}
		if t, ok := r.Registry.Get(id); ok {
			r.persistTrigger(t)
		}
		logger.Infof("[api] trigger enabled=%v ip=%s id=%s", enabled, c.ClientIP(), id)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "enabled": enabled})
	}
}

func (r *Router) persistTrigger(t trigger.Trigger) {
	if r.Store == nil {
		return
	}
	if err := r.Store.SaveTrigger(t); err != nil {
		logger.Warnf("[api] trigger persist failed id=%s err=%v", t.ID, err)
	}
}

func (r *Router) handleListPositions(c *gin.Context) {
	if r.Book == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not running"})
		return
	}
	state := strings.ToLower(strings.TrimSpace(c.DefaultQuery("state", "active")))
	var positions any
	switch state {
	case "all":
		positions = r.Book.All()
	default:
		positions = r.Book.Active()
	}
	c.JSON(http.StatusOK, gin.H{
		"positions":       positions,
		"active_count":    r.Book.ActiveCount(),
		"active_notional": r.Book.ActiveNotional(),
	})
}

type closePositionRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleClosePosition(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	id := c.Param("id")
	var req closePositionRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "manual"
	}
	if err := r.Engine.ClosePosition(c.Request.Context(), id, req.Reason); err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		var conflict *engine.StateConflict
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] close position failed ip=%s id=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] close position requested ip=%s id=%s reason=%s", c.ClientIP(), id, req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"status": "closing", "id": id})
}

func (r *Router) handleListOrders(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	orders, err := r.Store.RecentOrders(limit)
	if err != nil {
		logger.Errorf("[api] list orders failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (r *Router) handleCancelOrder(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	id := c.Param("id")
	cancelled, err := r.Engine.CancelOrder(c.Request.Context(), id)
	if err != nil {
		logger.Warnf("[api] cancel order failed ip=%s id=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"status": "not_cancelled", "id": id})
		return
	}
	logger.Infof("[api] order cancelled ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "id": id})
}

func (r *Router) handleRiskStatus(c *gin.Context) {
	if r.Gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk gate not configured"})
		return
	}
	c.JSON(http.StatusOK, r.Gate.Status())
}

type riskPauseRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleRiskPause(c *gin.Context) {
	if r.Gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk gate not configured"})
		return
	}
	var req riskPauseRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "api request"
	}
	r.Gate.Pause(req.Reason)
	logger.Warnf("[api] trading paused ip=%s reason=%s", c.ClientIP(), req.Reason)
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (r *Router) handleRiskResume(c *gin.Context) {
	if r.Gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk gate not configured"})
		return
	}
	r.Gate.Resume()
	logger.Infof("[api] trading resumed ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (r *Router) handleRiskReset(c *gin.Context) {
	if r.Gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk gate not configured"})
		return
	}
	r.Gate.ResetBreaker()
	logger.Warnf("[api] circuit breaker reset ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (r *Router) handleMetrics(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	c.JSON(http.StatusOK, r.Engine.Metrics())
}

func (r *Router) handleAudit(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail not enabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	records := r.Audit.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
