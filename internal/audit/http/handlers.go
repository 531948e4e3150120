package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keystone-pm/keystone/internal/audit"
	"github.com/keystone-pm/keystone/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Handler serves the decision timeline. Access (view:audit) is
// enforced by the route policy for /audit.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load decision timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events": result.Events,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Identity: strings.TrimSpace(q.Get("identity")),
		Outcome:  strings.TrimSpace(q.Get("outcome")),
		Reason:   strings.TrimSpace(q.Get("reason")),
	}
	switch filters.Outcome {
	case "", audit.OutcomeAllow, audit.OutcomeDeny:
	default:
		return filters, fmt.Errorf("outcome must be %q or %q", audit.OutcomeAllow, audit.OutcomeDeny)
	}
	var err error
	if filters.From, err = parseDate(q.Get("from")); err != nil {
		return filters, err
	}
	if filters.To, err = parseDate(q.Get("to")); err != nil {
		return filters, err
	}
	now := h.now().UTC()
	if filters.To.IsZero() {
		filters.To = now
	}
	if filters.From.IsZero() {
		filters.From = filters.To.Add(-defaultDateRange)
	}
	if filters.To.Before(filters.From) {
		return filters, fmt.Errorf("from must precede to")
	}
	if filters.To.Sub(filters.From) > maxDateRange {
		return filters, fmt.Errorf("date range must not exceed %d days", int(maxDateRange.Hours()/24))
	}
	if filters.Page, err = parsePositiveInt(q.Get("page")); err != nil {
		return filters, err
	}
	if filters.PageSize, err = parsePositiveInt(q.Get("page_size")); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates must be RFC3339 timestamps")
	}
	return t, nil
}

func parsePositiveInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("page parameters must be positive integers")
	}
	return n, nil
}
