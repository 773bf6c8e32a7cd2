package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
	"github.com/edubase/center-ops-api/pkg/response"
)

type conflictService interface {
	FindAvailableResources(ctx context.Context, branchID string, date time.Time, timeSlotID, excludingSessionID string) ([]models.Resource, error)
	HasSchedulingConflict(ctx context.Context, resourceID string, date time.Time, timeSlotID string) (bool, error)
	NextUsage(ctx context.Context, resourceID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error)
	DeactivateResource(ctx context.Context, resourceID string) error
	DeactivateTimeSlot(ctx context.Context, timeSlotID string) error
}

// ResourceHandler answers scheduling-conflict queries over rooms and virtual
// resources.
type ResourceHandler struct {
	conflicts conflictService
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(conflicts conflictService) *ResourceHandler {
	return &ResourceHandler{conflicts: conflicts}
}

func parseDateParam(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, name+" is required")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, name+" must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

// Available godoc
// @Summary List free resources for a date and time slot
// @Tags Resources
// @Produce json
// @Param branchId query string true "Branch ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param timeSlotId query string true "Time slot template ID"
// @Param excludingSessionId query string false "Session to ignore when checking occupancy"
// @Success 200 {object} response.Envelope
// @Router /resources/available [get]
func (h *ResourceHandler) Available(c *gin.Context) {
	branchID := c.Query("branchId")
	timeSlotID := c.Query("timeSlotId")
	if branchID == "" || timeSlotID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "branchId and timeSlotId are required"))
		return
	}
	date, err := parseDateParam(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	resources, err := h.conflicts.FindAvailableResources(c.Request.Context(), branchID, date, timeSlotID, c.Query("excludingSessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// Conflict godoc
// @Summary Check whether a resource is occupied for a date and time slot
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param timeSlotId query string true "Time slot template ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/conflict [get]
func (h *ResourceHandler) Conflict(c *gin.Context) {
	timeSlotID := c.Query("timeSlotId")
	if timeSlotID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "timeSlotId is required"))
		return
	}
	date, err := parseDateParam(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	conflict, err := h.conflicts.HasSchedulingConflict(c.Request.Context(), c.Param("id"), date, timeSlotID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resource_id": c.Param("id"), "conflict": conflict}, nil)
}

// NextUsage godoc
// @Summary Earliest upcoming session bound to a resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Param fromDate query string false "Date (YYYY-MM-DD), defaults to today"
// @Param fromTime query string false "Time (HH:MM), defaults to 00:00"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/next-usage [get]
func (h *ResourceHandler) NextUsage(c *gin.Context) {
	fromDate := time.Now().UTC().Truncate(24 * time.Hour)
	if c.Query("fromDate") != "" {
		parsed, err := parseDateParam(c, "fromDate")
		if err != nil {
			response.Error(c, err)
			return
		}
		fromDate = parsed
	}
	fromTime := c.Query("fromTime")
	if fromTime == "" {
		fromTime = "00:00"
	}
	session, err := h.conflicts.NextUsage(c.Request.Context(), c.Param("id"), fromDate, fromTime)
	if err != nil {
		response.Error(c, err)
		return
	}
	if session == nil {
		response.JSON(c, http.StatusOK, gin.H{"resource_id": c.Param("id"), "next_usage": nil}, nil)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resource_id": c.Param("id"), "next_usage": session}, nil)
}

// Deactivate godoc
// @Summary Take a resource out of scheduling rotation
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Resource still has upcoming sessions"
// @Router /resources/{id}/deactivate [post]
func (h *ResourceHandler) Deactivate(c *gin.Context) {
	if err := h.conflicts.DeactivateResource(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"resource_id": c.Param("id"), "status": models.ResourceStatusInactive}, nil)
}

// DeactivateTimeSlot godoc
// @Summary Retire a time slot template
// @Tags Resources
// @Produce json
// @Param id path string true "Time slot template ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Slot still has upcoming sessions"
// @Router /time-slots/{id}/deactivate [post]
func (h *ResourceHandler) DeactivateTimeSlot(c *gin.Context) {
	if err := h.conflicts.DeactivateTimeSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"time_slot_id": c.Param("id"), "active": false}, nil)
}
