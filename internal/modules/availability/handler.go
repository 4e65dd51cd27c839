package availability

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
	rg.GET("/providers/:id/slots", h.DaySlots)
	rg.POST("/availability/slots/ensure", h.EnsureSlots)
	rg.PATCH("/availability/slots", h.ToggleSlot)
	rg.DELETE("/availability/slots", h.DeleteSlot)
	rg.GET("/availability/rules", h.ListRules)
	rg.POST("/availability/rules", h.SaveRule)
	rg.DELETE("/availability/rules/:id", h.DeactivateRule)
	rg.GET("/listings/:id/template", h.GetTemplate)
	rg.PUT("/listings/:id/template", h.UpdateTemplate)
}

// DaySlots returns the resolved 30-minute grid for one provider day.
func (h *Handler) DaySlots(c *gin.Context) {
	providerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid provider id")
		return
	}
	listingID, err := strconv.ParseInt(c.Query("listing_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Missing listing_id")
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date, expected YYYY-MM-DD")
		return
	}

	q := DayQuery{
		ProviderID: providerID,
		ListingID:  listingID,
		Date:       date,
		Recurrence: domain.RecurrenceType(c.Query("recurrence")),
	}
	if anchor := c.Query("anchor"); anchor != "" {
		t, err := time.Parse("2006-01-02", anchor)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid anchor date")
			return
		}
		q.AnchorStart = t
	} else {
		q.AnchorStart = date
	}

	slots, err := h.service.DaySlots(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) EnsureSlots(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	var req EnsureSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if !req.To.After(req.From) {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Range end must be after range start")
		return
	}

	inserted, err := h.service.EnsureSlots(c.Request.Context(), providerID, req.ListingID, req.From, req.To)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"inserted": inserted})
}

func (h *Handler) ToggleSlot(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	var req ToggleSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := h.service.ToggleSlot(c.Request.Context(), providerID, req); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"toggled": true})
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	listingID, err := strconv.ParseInt(c.Query("listing_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid listing id")
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start_time"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid start time")
		return
	}

	if err := h.service.DeleteSlot(c.Request.Context(), providerID, listingID, start); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) ListRules(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	rules, err := h.service.ListRules(c.Request.Context(), providerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) SaveRule(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	var req SaveRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	rule, err := h.service.SaveRule(c.Request.Context(), providerID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"rule": rule})
}

func (h *Handler) DeactivateRule(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule id")
		return
	}

	if err := h.service.DeactivateRule(c.Request.Context(), providerID, ruleID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid listing id")
		return
	}
	tpl, err := h.service.GetTemplate(c.Request.Context(), listingID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template": tpl})
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	providerID, ok := providerFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}
	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid listing id")
		return
	}
	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := h.service.UpdateTemplate(c.Request.Context(), providerID, listingID, req.Template); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template": req.Template})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTemplate):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSlotNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Not allowed")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed")
	}
}

func providerFromContext(c *gin.Context) (int64, bool) {
	idVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := idVal.(int64)
	if !ok {
		return 0, false
	}
	if role, _ := c.Get("role"); role != string(domain.RoleProvider) {
		return 0, false
	}
	return id, true
}
