package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
	"github.com/edubase/center-ops-api/pkg/response"
)

type timelineService interface {
	Overview(ctx context.Context, studentID string) ([]models.ClassTimeline, error)
	Report(ctx context.Context, studentID, classID string) (*models.ClassTimeline, error)
	AbsenceRate(ctx context.Context, studentID, classID string) (float64, error)
}

// AttendanceHandler exposes timeline projections and absence rates.
type AttendanceHandler struct {
	timeline timelineService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(timeline timelineService) *AttendanceHandler {
	return &AttendanceHandler{timeline: timeline}
}

// resolveStudentID scopes students to their own record; staff pass any id.
func resolveStudentID(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	studentID := c.Param("studentId")
	if claims.IsStudent() && !claims.ActsFor(studentID) {
		return "", appErrors.ErrAccessDenied
	}
	return studentID, nil
}

// Overview godoc
// @Summary Attendance overview across all classes
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/attendance [get]
func (h *AttendanceHandler) Overview(c *gin.Context) {
	studentID, err := resolveStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	timelines, err := h.timeline.Overview(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timelines, nil)
}

// Report godoc
// @Summary Attendance timeline for one class
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/attendance/{classId} [get]
func (h *AttendanceHandler) Report(c *gin.Context) {
	studentID, err := resolveStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	timeline, err := h.timeline.Report(c.Request.Context(), studentID, c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timeline, nil)
}

// AbsenceRate godoc
// @Summary Historical absence rate for one class
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/absence-rate/{classId} [get]
func (h *AttendanceHandler) AbsenceRate(c *gin.Context) {
	studentID, err := resolveStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rate, err := h.timeline.AbsenceRate(c.Request.Context(), studentID, c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"student_id":   studentID,
		"class_id":     c.Param("classId"),
		"absence_rate": rate,
	}, nil)
}
