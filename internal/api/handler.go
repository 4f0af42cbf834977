// internal/api/handler.go

// Package api exposes the decision pipeline over HTTP. Submissions are
// evaluated synchronously; reads are served from Redis with Postgres
// as fallback, and listings come from the search index.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/pipeline"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/repository"
	sendnotification "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/send-notification"
	validateapplication "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/validate-application"
)

// DecisionStore is the slice of the repository the API needs.
type DecisionStore interface {
	CreateApplication(ctx context.Context, app *models.ApplicationRecord) error
	UpdateStatus(ctx context.Context, applicationID, status string) error
	SaveDecision(ctx context.Context, result *models.DecisionResult) error
	GetDecision(ctx context.Context, applicationID string) (*models.DecisionResult, error)
	GetApplication(ctx context.Context, applicationID string) (*models.ApplicationRecord, error)
}

// DecisionNotifier tells the applicant about the outcome. Satisfied by
// the send-notification handler.
type DecisionNotifier interface {
	Execute(ctx context.Context, input *sendnotification.Input) (*sendnotification.Output, error)
}

// DecisionSearcher serves filtered listings and keeps the index fresh.
type DecisionSearcher interface {
	IndexDecision(ctx context.Context, result *models.DecisionResult) error
	SearchDecisions(ctx context.Context, filter repository.SearchFilter) (*repository.SearchResult, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func() error

type Handler struct {
	engine   *pipeline.Engine
	store    DecisionStore
	searcher DecisionSearcher
	notifier DecisionNotifier
	cache    *redis.Client
	cacheTTL time.Duration
	health   map[string]HealthChecker
	logger   logger.Logger
}

type Options struct {
	Engine   *pipeline.Engine
	Store    DecisionStore
	Searcher DecisionSearcher
	Notifier DecisionNotifier
	Cache    *redis.Client
	CacheTTL time.Duration
	Health   map[string]HealthChecker
}

func NewHandler(opts Options, log logger.Logger) *Handler {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Handler{
		engine:   opts.Engine,
		store:    opts.Store,
		searcher: opts.Searcher,
		notifier: opts.Notifier,
		cache:    opts.Cache,
		cacheTTL: ttl,
		health:   opts.Health,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/loan-applications")
	{
		g.POST("", h.SubmitApplication)
		g.GET("", h.ListDecisions)
		g.GET("/:id", h.GetDecision)
	}
	r.GET("/health", h.Health)
}

// SubmitApplication validates, persists and evaluates one application
// in a single request. The application row is created before the
// pipeline runs, so a resubmission is rejected as a duplicate without
// being re-evaluated.
func (h *Handler) SubmitApplication(c *gin.Context) {
	var app models.ApplicationRecord
	if err := c.ShouldBindJSON(&app); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if app.ApplicationID == "" {
		app.ApplicationID = uuid.New().String()
	}

	ctx := c.Request.Context()

	if fieldErrors := validateapplication.ValidateRecord(&app); len(fieldErrors) > 0 {
		h.writeError(c, apperrors.NewInvalidInputError(
			fmt.Sprintf("application failed validation with %d field error(s)", len(fieldErrors)),
			fieldErrors,
		))
		return
	}

	if err := h.store.CreateApplication(ctx, &app); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.store.UpdateStatus(ctx, app.ApplicationID, "processing"); err != nil {
		h.logger.Warn("status update failed", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err,
		})
	}

	result, err := h.engine.Evaluate(ctx, &app)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.store.SaveDecision(ctx, result); err != nil {
		h.writeError(c, err)
		return
	}

	// Mirror into the index and cache, and tell the applicant; all
	// best-effort.
	if h.searcher != nil {
		if err := h.searcher.IndexDecision(ctx, result); err != nil {
			h.logger.Warn("decision indexing failed", map[string]interface{}{
				"applicationId": app.ApplicationID,
				"error":         err,
			})
		}
	}
	h.cacheDecision(ctx, result)
	h.notifyApplicant(ctx, &app, result)

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) notifyApplicant(ctx context.Context, app *models.ApplicationRecord, result *models.DecisionResult) {
	if h.notifier == nil {
		return
	}
	if _, err := h.notifier.Execute(ctx, &sendnotification.Input{Application: app, Result: result}); err != nil {
		h.logger.Warn("applicant notification failed", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err,
		})
	}
}

// GetDecision serves a decision by application ID, Redis first.
func (h *Handler) GetDecision(c *gin.Context) {
	applicationID := c.Param("id")
	ctx := c.Request.Context()

	if cached := h.cachedDecision(ctx, applicationID); cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.store.GetDecision(ctx, applicationID)
	if err != nil {
		// No decision row yet does not mean the application is unknown;
		// if its record exists the evaluation is still in flight.
		if stdErr, ok := err.(*apperrors.StandardError); ok && stdErr.Code == apperrors.ErrCodeApplicationNotFound {
			if app, appErr := h.store.GetApplication(ctx, applicationID); appErr == nil {
				c.JSON(http.StatusAccepted, gin.H{
					"application_id": app.ApplicationID,
					"status":         "processing",
				})
				return
			}
		}
		h.writeError(c, err)
		return
	}

	h.cacheDecision(ctx, result)
	c.JSON(http.StatusOK, result)
}

// ListDecisions serves filtered decision listings from the search index.
func (h *Handler) ListDecisions(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	filter := repository.SearchFilter{
		Decision:  c.Query("decision"),
		RiskLevel: c.Query("risk_level"),
		Limit:     limit,
	}

	result, err := h.searcher.SearchDecisions(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health pings each configured dependency.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.health {
		if err := check(); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

func cacheKey(applicationID string) string {
	return fmt.Sprintf("decision:%s", applicationID)
}

func (h *Handler) cachedDecision(ctx context.Context, applicationID string) *models.DecisionResult {
	if h.cache == nil {
		return nil
	}

	raw, err := h.cache.Get(ctx, cacheKey(applicationID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		h.logger.Warn("cache read failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err,
		})
		return nil
	}

	var result models.DecisionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		h.logger.Warn("cache entry corrupt, dropping", map[string]interface{}{
			"applicationId": applicationID,
		})
		h.cache.Del(ctx, cacheKey(applicationID))
		return nil
	}
	return &result
}

func (h *Handler) cacheDecision(ctx context.Context, result *models.DecisionResult) {
	if h.cache == nil || result == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, cacheKey(result.ApplicationID), raw, h.cacheTTL).Err(); err != nil {
		h.logger.Warn("cache write failed", map[string]interface{}{
			"applicationId": result.ApplicationID,
			"error":         err,
		})
	}
}

// writeError maps application errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	if stdErr, ok := err.(*apperrors.StandardError); ok {
		switch stdErr.Code {
		case apperrors.ErrCodeInvalidInput:
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":        stdErr.Message,
				"details":      stdErr.Details,
				"field_errors": stdErr.Metadata["fieldErrors"],
			})
			return
		case apperrors.ErrCodeDuplicateApplication:
			c.JSON(http.StatusConflict, gin.H{"error": stdErr.Message})
			return
		case apperrors.ErrCodeApplicationNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": stdErr.Message})
			return
		}
	}

	h.logger.Error("request failed", map[string]interface{}{"error": err})
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
