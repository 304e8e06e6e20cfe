// Warning HTTP handlers.
//
// This file exposes REST endpoints for the warning pipeline:
//   - POST  /warnings/{kind}/dispatch   (manual trigger)
//   - GET   /warnings/{kind}/check      (evaluate without dispatching)
//   - GET   /check/flood-reports        (report-threshold status)
//   - GET   /notifications             (full warning history)
//   - GET   /notifications/history    (history since install time)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/scheduler"
	"github.com/sigab-app/sigab-backend/internal/services"
	"github.com/sigab-app/sigab-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// WarningService defines read-side warning operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type WarningService interface {
	// CheckCondition evaluates a warning kind without dispatching anything.
	CheckCondition(ctx context.Context, kind domain.WarningKind) (bool, string, error)
	// List returns the full warning ledger, newest first.
	List(ctx context.Context) ([]domain.Notification, error)
	// History returns ledger entries created at or after since, newest
	// first, capped server-side.
	History(ctx context.Context, since time.Time) ([]domain.Notification, error)
}

// ReportService exposes the report-threshold status check.
type ReportService interface {
	// ReportStatus returns today's valid report count and the threshold verdict.
	ReportStatus(ctx context.Context) (services.ReportStatus, error)
}

// DispatchService triggers one warning cycle on demand, sharing
// mutual exclusion with the scheduled loops.
type DispatchService interface {
	// RunNow runs one cycle for kind; scheduler.ErrBusy when one is in flight.
	RunNow(ctx context.Context, kind domain.WarningKind) (services.RunOutcome, error)
}

// TokenService defines the device-token registry operations consumed by HTTP
// handlers.
type TokenService interface {
	// Register stores a device token (idempotent).
	Register(ctx context.Context, token string) error
	// Stats returns registry totals.
	Stats(ctx context.Context) (services.TokenStats, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for warnings, checks, notifications, and
// device tokens. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	warnSvc     WarningService
	reportSvc   ReportService
	dispatchSvc DispatchService
	tokenSvc    TokenService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(warnSvc WarningService, reportSvc ReportService, dispatchSvc DispatchService, tokenSvc TokenService) *Handlers {
	return &Handlers{warnSvc: warnSvc, reportSvc: reportSvc, dispatchSvc: dispatchSvc, tokenSvc: tokenSvc}
}

// parseKind resolves the :kind route parameter, failing the request with a
// 400 when the kind is unknown.
func parseKind(c *gin.Context) (domain.WarningKind, bool) {
	kind, err := domain.ParseWarningKind(c.Param("kind"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown warning kind")
		return "", false
	}
	return kind, true
}

//
// DTOs
//

// CheckResponse is the verdict of an on-demand condition check.
type CheckResponse struct {
	// ShouldNotify reports whether the warning condition currently holds.
	ShouldNotify bool `json:"should_notify"`
	// Message is the warning body that would be sent; empty when the
	// condition does not hold.
	Message string `json:"message,omitempty"`
}

// ListNotificationsResponse wraps the warning ledger for list endpoints.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Count         int                   `json:"count"`
}

//
// Handlers
//

// TriggerDispatch godoc
// @ID          triggerDispatch
// @Summary     Trigger one warning cycle
// @Description Runs evaluate/dedup/dispatch for the given kind immediately. The run shares mutual exclusion with the scheduled loops.
// @Tags        Warnings
// @Produce     json
//
// @Param       kind  path  string  true  "Warning kind"  Enums(banjir, cuaca, laporan)
//
// @Success     200  {object}  services.RunOutcome
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown kind"
// @Failure     409  {object}  handlers.ErrorResponse  "Run already in flight"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /warnings/{kind}/dispatch [post]
func (h *Handlers) TriggerDispatch(c *gin.Context) {
	kind, valid := parseKind(c)
	if !valid {
		return
	}

	out, err := h.dispatchSvc.RunNow(c.Request.Context(), kind)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		fail(c, http.StatusConflict, ErrCodeDispatchBusy, "a dispatch for this kind is already running")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
	default:
		ok(c, http.StatusOK, out)
	}
}

// CheckWarning godoc
// @ID          checkWarning
// @Summary     Evaluate a warning condition
// @Description Evaluates the condition for the given kind without dispatching or writing the ledger.
// @Tags        Warnings
// @Produce     json
//
// @Param       kind  path  string  true  "Warning kind"  Enums(banjir, cuaca, laporan)
//
// @Success     200  {object}  handlers.CheckResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown kind"
// @Failure     500  {object}  handlers.ErrorResponse  "Evaluation failed"
// @Router      /warnings/{kind}/check [get]
func (h *Handlers) CheckWarning(c *gin.Context) {
	kind, valid := parseKind(c)
	if !valid {
		return
	}

	should, msg, err := h.warnSvc.CheckCondition(c.Request.Context(), kind)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCheckFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CheckResponse{ShouldNotify: should, Message: msg})
}

// CheckFloodReports godoc
// @ID          checkFloodReports
// @Summary     Report-threshold status
// @Description Returns today's count of valid flood reports and whether the threshold warning would fire.
// @Tags        Warnings
// @Produce     json
//
// @Success     200  {object}  services.ReportStatus
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /check/flood-reports [get]
func (h *Handlers) CheckFloodReports(c *gin.Context) {
	st, err := h.reportSvc.ReportStatus(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCheckFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List sent warnings
// @Description Returns every ledger entry, newest first.
// @Tags        Notifications
// @Produce     json
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	items, err := h.warnSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Count: len(items)})
}

// NotificationHistory godoc
// @ID          notificationHistory
// @Summary     Warning history since install
// @Description Returns ledger entries created at or after installed_at, newest first, capped at 50 entries. Fresh installs pass their install time so old warnings are not replayed.
// @Tags        Notifications
// @Produce     json
//
// @Param       installed_at  query  string  true   "App install time (RFC 3339)"  example(2025-03-01T00:00:00Z)
// @Param       limit         query  int     false  "Cap the number of entries returned"  minimum(0) maximum(50)
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid installed_at"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/history [get]
func (h *Handlers) NotificationHistory(c *gin.Context) {
	raw := c.Query("installed_at")
	if raw == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "installed_at query parameter is required")
		return
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "installed_at must be RFC 3339")
		return
	}

	items, err := h.warnSvc.History(c.Request.Context(), since)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// Optional client-side cap below the server-side maximum.
	limit := utils.AtoiDefault(c.Query("limit"), len(items))
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Count: len(items)})
}
