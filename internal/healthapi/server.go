// Package healthapi serves the liveness, top-up health, and admin risk
// endpoints.
package healthapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/internal/flagcache"
	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RiskEngine is the slice of the risk service the HTTP surface drives.
type RiskEngine interface {
	Profile(ctx context.Context, userID risk.UserID) (risk.ProfileView, error)
	EnableRefunds(ctx context.Context, userID risk.UserID) error
	DisableRefunds(ctx context.Context, userID risk.UserID) error
	MarkCompliant(ctx context.Context, userID risk.UserID, author risk.AuthorName, content string) error
	MarkNotReviewed(ctx context.Context, userID risk.UserID, author risk.AuthorName, content string) error
	PutOnProbation(ctx context.Context, userID risk.UserID, author risk.AuthorName, content string) error
	SuspendForFraud(ctx context.Context, userID risk.UserID, author risk.AuthorName, content string) error
	SuspendForTosViolation(ctx context.Context, userID risk.UserID, author risk.AuthorName, content string) error
}

// Reconciler triggers the balance reconciliation job for one seller.
type Reconciler interface {
	Perform(ctx context.Context, userID risk.UserID) error
}

// Dependencies carries the collaborators behind the HTTP surface.
type Dependencies struct {
	Engine     RiskEngine
	Reconciler Reconciler
	FlagCache  flagcache.FlagCache
	Logger     *zap.Logger
}

// Run boots the HTTP server and blocks until the context is cancelled or
// the listener fails.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := SetupRouter(cfg, deps)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("healthapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SetupRouter builds the gin router. Exported for tests.
func SetupRouter(cfg Config, deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		engine:     deps.Engine,
		reconciler: deps.Reconciler,
		flagCache:  deps.FlagCache,
		logger:     logger,
		timeout:    cfg.RequestTimeout,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/internal/paypal-topup", handler.handleTopupStatus)

	admin := router.Group("/admin")
	admin.Use(requireAdminToken([]byte(cfg.TokenSigningKey), cfg.TokenIssuer))
	admin.GET("/sellers/:id", handler.handleProfile)
	admin.POST("/sellers/:id/refunds/enable", handler.handleEnableRefunds)
	admin.POST("/sellers/:id/refunds/disable", handler.handleDisableRefunds)
	admin.POST("/sellers/:id/reconcile", handler.handleReconcile)
	admin.POST("/sellers/:id/risk-state", handler.handleMarkRiskState)

	return router
}

type httpHandler struct {
	engine     RiskEngine
	reconciler Reconciler
	flagCache  flagcache.FlagCache
	logger     *zap.Logger
	timeout    time.Duration
}

// handleTopupStatus answers "is a top-up currently needed" from the shared
// flag cache without recomputation. A never-written flag reads as needed so
// a stalled notification job trips the health check.
func (handler *httpHandler) handleTopupStatus(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	needed, found, err := handler.flagCache.GetFlag(requestCtx, flagcache.KeyPaypalTopupNeeded)
	if err != nil {
		handler.logger.Error("top-up flag read failed", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unknown"})
		return
	}
	if found && !needed {
		ctx.JSON(http.StatusOK, gin.H{"status": "topup not required", "topup_needed": false})
		return
	}
	ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "topup required", "topup_needed": true})
}

func (handler *httpHandler) handleProfile(ctx *gin.Context) {
	userID, ok := handler.pathUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	view, err := handler.engine.Profile(requestCtx, userID)
	if err != nil {
		handler.respondEngineError(ctx, "profile fetch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":              view.UserID.String(),
		"state":                view.State.String(),
		"refunds_disabled":     view.RefundsDisabled,
		"unpaid_balance_cents": view.UnpaidBalanceCents,
	})
}

func (handler *httpHandler) handleEnableRefunds(ctx *gin.Context) {
	handler.runRefundsChange(ctx, handler.engine.EnableRefunds, false)
}

func (handler *httpHandler) handleDisableRefunds(ctx *gin.Context) {
	handler.runRefundsChange(ctx, handler.engine.DisableRefunds, true)
}

func (handler *httpHandler) runRefundsChange(ctx *gin.Context, change func(context.Context, risk.UserID) error, disabled bool) {
	userID, ok := handler.pathUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	if err := change(requestCtx, userID); err != nil {
		handler.respondEngineError(ctx, "refund gate change failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":          userID.String(),
		"refunds_disabled": disabled,
	})
}

func (handler *httpHandler) handleReconcile(ctx *gin.Context) {
	userID, ok := handler.pathUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	if err := handler.reconciler.Perform(requestCtx, userID); err != nil {
		handler.respondEngineError(ctx, "reconcile failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "status": "reconciled"})
}

type markRiskStateRequest struct {
	State      string `json:"state"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
}

func (handler *httpHandler) handleMarkRiskState(ctx *gin.Context) {
	userID, ok := handler.pathUserID(ctx)
	if !ok {
		return
	}
	var request markRiskStateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	state, err := risk.ParseRiskState(request.State)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_state", "unknown risk state"))
		return
	}
	author, err := risk.NewAuthorName(request.AuthorName)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_author", "author name is required"))
		return
	}

	mark := map[risk.RiskState]func(context.Context, risk.UserID, risk.AuthorName, string) error{
		risk.RiskStateCompliant:       handler.engine.MarkCompliant,
		risk.RiskStateNotReviewed:     handler.engine.MarkNotReviewed,
		risk.RiskStateOnProbation:     handler.engine.PutOnProbation,
		risk.RiskStateSuspendedFraud:  handler.engine.SuspendForFraud,
		risk.RiskStateSuspendedForTos: handler.engine.SuspendForTosViolation,
	}[state]

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.timeout)
	defer cancel()
	if err := mark(requestCtx, userID, author, request.Content); err != nil {
		handler.respondEngineError(ctx, "risk-state change failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "state": state.String()})
}

func (handler *httpHandler) pathUserID(ctx *gin.Context) (risk.UserID, bool) {
	userID, err := risk.NewUserID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", "seller id is required"))
		return risk.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) respondEngineError(ctx *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, risk.ErrProfileNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "unknown seller"))
	case errors.Is(err, risk.ErrInvalidContent), errors.Is(err, risk.ErrInvalidAuthorName):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
	default:
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("engine_error", message))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
