package api

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/labstack/echo/v4"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	"BarPilot/internal/service/cache"
	"BarPilot/internal/services/risk"
	"BarPilot/internal/usecase"
	xhttp "BarPilot/pkg/http"
	xlogger "BarPilot/pkg/logger"
)

// HealthChecker reports liveness of one dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// EngineHandler exposes the engine's observability endpoints: recent
// decisions, veto breakdown, arm posteriors and budget state. Read
// only; the bar loop is never driven over HTTP.
type EngineHandler struct {
	logger  *xlogger.Logger
	history drepo.DecisionHistory
	engine  *usecase.DecisionEngine
	budget  *risk.BudgetManager
	deps    map[string]HealthChecker
	cache   *cache.TTLCache
}

// historyCacheTTL keeps repeated reads within one bar off the store.
const historyCacheTTL = 5 * time.Second

func NewEngineHandler(
	logger *xlogger.Logger,
	history drepo.DecisionHistory,
	engine *usecase.DecisionEngine,
	budget *risk.BudgetManager,
	deps map[string]HealthChecker,
) *EngineHandler {
	return &EngineHandler{
		logger: logger, history: history, engine: engine,
		budget: budget, deps: deps, cache: cache.NewTTLCache(),
	}
}

// recent reads the decision history through the TTL cache.
func (h *EngineHandler) recent(ctx context.Context, symbol, tf string, limit int) ([]*models.Decision, error) {
	key := fmt.Sprintf("%s:%s:%d", symbol, tf, limit)
	if v, ok := h.cache.Get(key); ok {
		return v.([]*models.Decision), nil
	}
	rows, err := h.history.Recent(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	h.cache.Set(key, rows, historyCacheTTL)
	return rows, nil
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/decisions", h.Decisions)
	g.GET("/vetoes", h.Vetoes)
	g.GET("/arms", h.Arms)
	g.GET("/budget", h.Budget)
	e.GET("/health", h.Health)
}

// Decisions returns the most recent decisions for one instrument.
func (h *EngineHandler) Decisions(c echo.Context) error {
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.NotFoundResponse(c, "decision history is disabled")
	}

	rows, err := h.recent(c.Request().Context(), req.Symbol, req.TF, req.Limit)
	if err != nil {
		h.logger.Error("decision history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Vetoes aggregates veto reasons over the most recent decisions.
func (h *EngineHandler) Vetoes(c echo.Context) error {
	req := &models.VetoBreakdownRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.NotFoundResponse(c, "decision history is disabled")
	}

	rows, err := h.recent(c.Request().Context(), req.Symbol, req.TF, req.Limit)
	if err != nil {
		h.logger.Error("decision history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	breakdown := make(map[models.VetoReason]int)
	vetoed := 0
	for _, d := range rows {
		if len(d.VetoReasons) > 0 {
			vetoed++
		}
		for _, r := range d.VetoReasons {
			breakdown[r]++
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"decisions": len(rows),
		"vetoed":    vetoed,
		"reasons":   breakdown,
	})
}

// ArmPosteriorView is one arm's posterior as served by the API.
type ArmPosteriorView struct {
	Arm        string  `json:"arm"`
	Class      string  `json:"class"`
	Pulls      int64   `json:"pulls"`
	MeanReward float64 `json:"mean_reward"`
	Variance   float64 `json:"variance"`
	Stddev     float64 `json:"stddev"`
}

// Arms returns the live bandit posteriors.
func (h *EngineHandler) Arms(c echo.Context) error {
	stats := h.engine.Stats()
	views := make([]ArmPosteriorView, 0, len(stats))
	for _, s := range stats {
		v := s.Variance()
		views = append(views, ArmPosteriorView{
			Arm:        s.ID,
			Class:      models.ClassOfArm(s.ID).String(),
			Pulls:      s.Pulls,
			MeanReward: s.Mean,
			Variance:   v,
			Stddev:     math.Sqrt(v),
		})
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// Budget returns the current risk budget counters.
func (h *EngineHandler) Budget(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.budget.Budget())
}

// Health pings each dependency and reports per-dependency status.
func (h *EngineHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	status := make(map[string]string, len(h.deps))
	healthy := true
	for name, dep := range h.deps {
		if err := dep.Health(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, 503, status)
	}
	return xhttp.SuccessResponse(c, status)
}
