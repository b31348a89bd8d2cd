// Package httpapi exposes the drawer service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 5 * time.Second
	errorCodePayload      = "invalid_payload"
	errorCodeInternal     = "internal"
	queryDate             = "date"
	queryCategory         = "category"
	queryPrefix           = "prefix"
	queryLimit            = "limit"
	paramTransactionID    = "id"
)

// DrawerService is the subset of drawer.Service the HTTP surface drives.
type DrawerService interface {
	Today() drawer.ShiftDate
	Open(ctx context.Context, cashierID drawer.CashierID, startingAmount drawer.Amount, provenance drawer.Provenance) (drawer.OpenResult, error)
	Status(ctx context.Context, cashierID drawer.CashierID) (drawer.StatusResult, error)
	EndShift(ctx context.Context, cashierID drawer.CashierID, counted drawer.Amount, provenance drawer.Provenance) (drawer.EndShiftResult, error)
	CashIn(ctx context.Context, cashierID drawer.CashierID, amount drawer.Amount, details drawer.MovementDetails, provenance drawer.Provenance) (drawer.MovementResult, error)
	CashOut(ctx context.Context, cashierID drawer.CashierID, amount drawer.Amount, details drawer.MovementDetails, requiresApproval bool, provenance drawer.Provenance) (drawer.MovementResult, error)
	SafeDrop(ctx context.Context, cashierID drawer.CashierID, amount drawer.Amount, details drawer.MovementDetails, provenance drawer.Provenance) (drawer.MovementResult, error)
	EditTransaction(ctx context.Context, cashierID drawer.CashierID, transactionID drawer.TransactionID, newAmount drawer.Amount, newDescription string, provenance drawer.Provenance) (drawer.EditResult, error)
	DeleteTransaction(ctx context.Context, cashierID drawer.CashierID, transactionID drawer.TransactionID, provenance drawer.Provenance) (drawer.DeleteResult, error)
	Balance(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (drawer.BalanceBreakdown, error)
	ListTransactions(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) ([]drawer.Transaction, error)
	SuggestDescriptions(ctx context.Context, category drawer.Category, prefix string, limit int) ([]string, error)
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine serving the drawer endpoints.
func NewRouter(cfg RouterConfig, service DrawerService, verifier *TokenVerifier, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept", authorizationHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := &httpHandler{service: service, logger: logger, timeout: cfg.RequestTimeout}
	api := router.Group("/api/drawer")
	api.Use(verifier.Middleware())

	api.POST("/sessions", handler.handleOpen)
	api.GET("/session", handler.handleStatus)
	api.POST("/session/end", handler.handleEndShift)
	api.POST("/cash-in", handler.handleCashIn)
	api.POST("/cash-out", handler.handleCashOut)
	api.POST("/safe-drop", handler.handleSafeDrop)
	api.PATCH("/transactions/:"+paramTransactionID, handler.handleEdit)
	api.DELETE("/transactions/:"+paramTransactionID, handler.handleDelete)
	api.GET("/transactions", handler.handleList)
	api.GET("/balance", handler.handleBalance)
	api.GET("/descriptions", handler.handleDescriptions)

	return router
}

type httpHandler struct {
	service DrawerService
	logger  *zap.Logger
	timeout time.Duration
}

func (handler *httpHandler) handleOpen(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	var request openRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := requiredAmount(request.StartingAmount, drawer.NewAmount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.Open(requestCtx, cashierID, amount, provenanceOf(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, success(result.Receipt, toSessionPayload(result.Session)))
}

func (handler *httpHandler) handleStatus(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	status, err := handler.service.Status(requestCtx, cashierID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !status.Active {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "No active session", "active": false})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Active session",
		"active":    true,
		"session":   toSessionPayload(status.Session),
		"breakdown": toBreakdownPayload(status.Breakdown),
	})
}

func (handler *httpHandler) handleEndShift(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	var request endShiftRequest
	if !bindJSON(ctx, &request) {
		return
	}
	counted, err := requiredAmount(request.CountedAmount, drawer.NewAmount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.EndShift(requestCtx, cashierID, counted, provenanceOf(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, success(result.Receipt, reconciliationPayload{
		Session:      toSessionPayload(result.Session),
		Breakdown:    toBreakdownPayload(result.Breakdown),
		Counted:      money(result.Counted),
		Variance:     money(result.Variance),
		VarianceType: string(result.VarianceType),
	}))
}

func (handler *httpHandler) handleCashIn(ctx *gin.Context) {
	handler.handleMovement(ctx, func(requestCtx context.Context, cashierID drawer.CashierID, amount drawer.Amount, request movementRequest) (drawer.MovementResult, error) {
		return handler.service.CashIn(requestCtx, cashierID, amount, detailsOf(request), provenanceOf(ctx))
	})
}

func (handler *httpHandler) handleCashOut(ctx *gin.Context) {
	handler.handleMovement(ctx, func(requestCtx context.Context, cashierID drawer.CashierID, amount drawer.Amount, request movementRequest) (drawer.MovementResult, error) {
		return handler.service.CashOut(requestCtx, cashierID, amount, detailsOf(request), request.RequiresApproval, provenanceOf(ctx))
	})
}

func (handler *httpHandler) handleSafeDrop(ctx *gin.Context) {
	handler.handleMovement(ctx, func(requestCtx context.Context, cashierID drawer.CashierID, amount drawer.Amount, request movementRequest) (drawer.MovementResult, error) {
		return handler.service.SafeDrop(requestCtx, cashierID, amount, detailsOf(request), provenanceOf(ctx))
	})
}

type movementFunc func(ctx context.Context, cashierID drawer.CashierID, amount drawer.Amount, request movementRequest) (drawer.MovementResult, error)

func (handler *httpHandler) handleMovement(ctx *gin.Context, record movementFunc) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	var request movementRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := requiredAmount(request.Amount, drawer.NewPositiveAmount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := record(requestCtx, cashierID, amount, request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, success(result.Receipt, toTransactionPayload(result.Transaction)))
}

func (handler *httpHandler) handleEdit(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	transactionID, err := drawer.NewTransactionID(ctx.Param(paramTransactionID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request editRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := requiredAmount(request.Amount, drawer.NewPositiveAmount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.EditTransaction(requestCtx, cashierID, transactionID, amount, request.Description, provenanceOf(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, success(result.Receipt, gin.H{
		"before": toTransactionPayload(result.Before),
		"after":  toTransactionPayload(result.After),
	}))
}

func (handler *httpHandler) handleDelete(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	transactionID, err := drawer.NewTransactionID(ctx.Param(paramTransactionID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.DeleteTransaction(requestCtx, cashierID, transactionID, provenanceOf(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, success(result.Receipt, toTransactionPayload(result.Removed)))
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	date, err := handler.dateQuery(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	breakdown, err := handler.service.Balance(requestCtx, cashierID, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, success(drawer.Receipt{Message: "Expected balance " + money(breakdown.ExpectedBalance)}, toBreakdownPayload(breakdown)))
}

func (handler *httpHandler) handleList(ctx *gin.Context) {
	cashierID, ok := handler.cashier(ctx)
	if !ok {
		return
	}
	date, err := handler.dateQuery(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transactions, err := handler.service.ListTransactions(requestCtx, cashierID, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, success(drawer.Receipt{Message: strconv.Itoa(len(transactions)) + " transactions"}, toTransactionPayloads(transactions)))
}

func (handler *httpHandler) handleDescriptions(ctx *gin.Context) {
	if _, ok := handler.cashier(ctx); !ok {
		return
	}
	category, err := drawer.ParseCategory(ctx.Query(queryCategory))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	limit := 0
	if rawLimit := strings.TrimSpace(ctx.Query(queryLimit)); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, failure(errorCodePayload, "limit must be an integer"))
			return
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	suggestions, err := handler.service.SuggestDescriptions(requestCtx, category, ctx.Query(queryPrefix), limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	ctx.JSON(http.StatusOK, success(drawer.Receipt{}, suggestions))
}

func (handler *httpHandler) cashier(ctx *gin.Context) (drawer.CashierID, bool) {
	cashierID, ok := cashierFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, failure(errorCodeAuth, "missing cashier identity"))
	}
	return cashierID, ok
}

func (handler *httpHandler) dateQuery(ctx *gin.Context) (drawer.ShiftDate, error) {
	raw := strings.TrimSpace(ctx.Query(queryDate))
	if raw == "" {
		return handler.service.Today(), nil
	}
	return drawer.ParseShiftDate(raw)
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	kind := drawer.Kind(err)
	status := statusFor(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		handler.logger.Error("drawer request failed",
			zap.String("path", ctx.FullPath()),
			zap.String("error_kind", kind),
			zap.Error(err),
		)
		if kind == errorCodeInternal {
			message = "internal error"
		}
	}
	ctx.JSON(status, failure(kind, message))
}

func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "store_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, failure(errorCodePayload, "expected JSON body"))
		return false
	}
	return true
}

func requiredAmount(raw decimal.NullDecimal, construct func(decimal.Decimal) (drawer.Amount, error)) (drawer.Amount, error) {
	if !raw.Valid {
		return drawer.Amount{}, drawer.ErrInvalidAmount
	}
	return construct(raw.Decimal)
}

func detailsOf(request movementRequest) drawer.MovementDetails {
	return drawer.MovementDetails{Reason: request.Reason, Reference: request.Reference, Notes: request.Notes}
}

func provenanceOf(ctx *gin.Context) drawer.Provenance {
	return drawer.Provenance{IPAddress: ctx.ClientIP(), UserAgent: ctx.Request.UserAgent()}
}
