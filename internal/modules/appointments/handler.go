package appointments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"servio/internal/domain"
	"servio/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/calendar", h.Calendar)
	rg.POST("/appointments", h.Create)
	rg.PATCH("/appointments/:id/status", h.UpdateStatus)
	rg.POST("/recurring/:id/occurrences/cancel", h.CancelOccurrence)
	rg.POST("/recurring/:id/occurrences/reschedule", h.RescheduleOccurrence)
	rg.DELETE("/recurring/:id/occurrences", h.RestoreOccurrence)
	rg.POST("/recurring/:id/cancel", h.CancelSeries)
}

// Calendar returns the unified appointment list for the authenticated actor.
func (h *Handler) Calendar(c *gin.Context) {
	actorID, role, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	now := time.Now().UTC()
	from := parseTimeQuery(c, "from", now)
	to := parseTimeQuery(c, "to", now.AddDate(0, 3, 0))
	includeCompleted := c.Query("include_completed") == "true"

	if !to.After(from) {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Window end must be after window start")
		return
	}

	instances, err := h.service.BuildCalendar(c.Request.Context(), actorID, role, from, to, includeCompleted)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "CALENDAR_FETCH_FAILED", "Failed to load calendar")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"appointments": instances})
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	a, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking request")
		case errors.Is(err, ErrNotAvailable), errors.Is(err, ErrOverbooking):
			response.Error(c, http.StatusConflict, "BOOKING_CONFLICT", "Provider is not available for the selected time")
		default:
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create appointment")
		}
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"appointment": a})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actorID, role, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid appointment id")
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	a, err := h.service.UpdateStatus(c.Request.Context(), id, actorID, role, domain.AppointmentStatus(req.Status))
	if err != nil {
		h.writeActionError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"appointment": a})
}

func (h *Handler) CancelOccurrence(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule id")
		return
	}
	var req CancelOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid occurrence date")
		return
	}

	e, err := h.service.CancelOccurrence(c.Request.Context(), ruleID, actorID, date, req.Notes)
	if err != nil {
		h.writeActionError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exception": e})
}

// RestoreOccurrence drops the exception on one date so the occurrence comes
// back into the series.
func (h *Handler) RestoreOccurrence(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule id")
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid occurrence date")
		return
	}

	if err := h.service.RestoreOccurrence(c.Request.Context(), ruleID, actorID, date); err != nil {
		h.writeActionError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"restored": true})
}

func (h *Handler) RescheduleOccurrence(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule id")
		return
	}
	var req RescheduleOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid occurrence date")
		return
	}

	e, err := h.service.RescheduleOccurrence(c.Request.Context(), ruleID, actorID, date, req.NewStartTime, req.NewEndTime, req.Notes)
	if err != nil {
		h.writeActionError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exception": e})
}

func (h *Handler) CancelSeries(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule id")
		return
	}

	if err := h.service.CancelSeries(c.Request.Context(), ruleID, actorID); err != nil {
		h.writeActionError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) writeActionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotAnOccurrence), errors.Is(err, ErrNotRecurring):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Appointment not found")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Not allowed")
	case errors.Is(err, ErrInvalidStatusTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", "Status transition not allowed")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed")
	}
}

func actorFromContext(c *gin.Context) (int64, domain.UserRole, bool) {
	idVal, ok := c.Get("user_id")
	if !ok {
		return 0, "", false
	}
	id, ok := idVal.(int64)
	if !ok {
		return 0, "", false
	}
	roleVal, _ := c.Get("role")
	role, _ := roleVal.(string)
	return id, domain.UserRole(role), true
}

func parseTimeQuery(c *gin.Context, key string, fallback time.Time) time.Time {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return fallback
}
