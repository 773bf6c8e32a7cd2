package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type attendanceRowStore interface {
	ListRows(ctx context.Context, studentID, classID string) ([]models.AttendanceRow, error)
}

type enrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error)
}

type sessionReader interface {
	GetByID(ctx context.Context, id string) (*models.SessionDetail, error)
}

type classReader interface {
	GetByID(ctx context.Context, id string) (*models.Class, error)
}

// TimelineService projects a student's effective attendance timeline per
// class: it reconstructs the session window the student was active in
// (accounting for transfers), classifies each session's outcome and
// aggregates the counts the rest of the engine consumes.
type TimelineService struct {
	rows        attendanceRowStore
	enrollments enrollmentReader
	sessions    sessionReader
	classes     classReader
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewTimelineService constructs the service.
func NewTimelineService(rows attendanceRowStore, enrollments enrollmentReader, sessions sessionReader, classes classReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *TimelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineService{
		rows:        rows,
		enrollments: enrollments,
		sessions:    sessions,
		classes:     classes,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

func overviewCacheKey(studentID string) string {
	return fmt.Sprintf("attendance:overview:%s", studentID)
}

// InvalidateOverview drops the cached overview for a student. Called after
// approval side effects touch attendance or enrollment rows.
func (s *TimelineService) InvalidateOverview(ctx context.Context, studentID string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, overviewCacheKey(studentID)); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("studentId", studentID), zap.Error(err))
	}
}

// Overview projects timelines for every class the student has attendance
// rows in, sorted by class display priority. A student with no enrollments
// gets an empty slice, not an error.
func (s *TimelineService) Overview(ctx context.Context, studentID string) ([]models.ClassTimeline, error) {
	if s.cache.Enabled() {
		var cached []models.ClassTimeline
		if hit, _ := s.cache.Get(ctx, overviewCacheKey(studentID), &cached); hit {
			return cached, nil
		}
	}

	rows, err := s.rows.ListRows(ctx, studentID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}

	byClass := make(map[string][]models.AttendanceRow)
	classOrder := make([]string, 0, 4)
	for _, row := range rows {
		if _, seen := byClass[row.ClassID]; !seen {
			classOrder = append(classOrder, row.ClassID)
		}
		byClass[row.ClassID] = append(byClass[row.ClassID], row)
	}

	timelines := make([]models.ClassTimeline, 0, len(classOrder))
	for _, classID := range classOrder {
		timeline, err := s.projectClass(ctx, studentID, classID, byClass[classID])
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, *timeline)
	}

	// ONGOING first, then SCHEDULED, then COMPLETED; ties keep row order.
	sort.SliceStable(timelines, func(i, j int) bool {
		return timelines[i].ClassStatus.DisplayPriority() < timelines[j].ClassStatus.DisplayPriority()
	})

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, overviewCacheKey(studentID), timelines, s.cacheTTL); err != nil {
			s.logger.Warn("overview cache store failed", zap.String("studentId", studentID), zap.Error(err))
		}
	}
	return timelines, nil
}

// Report projects the detailed timeline for one (student, class) pair.
func (s *TimelineService) Report(ctx context.Context, studentID, classID string) (*models.ClassTimeline, error) {
	rows, err := s.rows.ListRows(ctx, studentID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}
	return s.projectClass(ctx, studentID, classID, rows)
}

func (s *TimelineService) projectClass(ctx context.Context, studentID, classID string, rows []models.AttendanceRow) (*models.ClassTimeline, error) {
	timeline := &models.ClassTimeline{ClassID: classID, Entries: []models.TimelineEntry{}}

	if class, err := s.classes.GetByID(ctx, classID); err == nil {
		timeline.ClassName = class.Name
		timeline.ClassStatus = class.Status
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	window, err := s.resolveWindow(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}

	today := truncateToDay(s.now())
	summary := models.TimelineSummary{}
	for _, row := range rows {
		if row.SessionStatus == models.SessionStatusCancelled || row.IsTransferredOut {
			continue
		}
		if !window.contains(row.SessionSeq) {
			continue
		}
		outcome := deriveOutcome(row, today)
		timeline.Entries = append(timeline.Entries, models.TimelineEntry{
			SessionID:   row.SessionID,
			SessionSeq:  row.SessionSeq,
			SessionDate: row.SessionDate,
			Outcome:     outcome,
			IsMakeup:    row.IsMakeup,
		})
		summary.TotalSessions++
		switch outcome {
		case models.OutcomePresent:
			summary.Attended++
		case models.OutcomeAbsent:
			summary.Absent++
		case models.OutcomeExcused:
			summary.Excused++
		case models.OutcomeUpcoming:
			summary.Upcoming++
		}
	}

	if held := summary.TotalSessions - summary.Upcoming; held > 0 {
		summary.AttendanceRate = float64(summary.Attended) / float64(held)
	}
	timeline.Summary = summary
	return timeline, nil
}

// AbsenceRate computes the historical absence percentage (0-100) for a
// (student, class) pair. Only past, non-cancelled, non-transferred sessions
// count; only explicitly marked ABSENT rows raise the rate. The value is
// advisory and never blocks a submission.
func (s *TimelineService) AbsenceRate(ctx context.Context, studentID, classID string) (float64, error) {
	rows, err := s.rows.ListRows(ctx, studentID, classID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
	}
	today := truncateToDay(s.now())
	past, absent := 0, 0
	for _, row := range rows {
		if row.SessionStatus == models.SessionStatusCancelled || row.IsTransferredOut {
			continue
		}
		if !truncateToDay(row.SessionDate).Before(today) {
			continue
		}
		past++
		if row.Status != nil && *row.Status == models.AttendanceAbsent {
			absent++
		}
	}
	if past == 0 {
		return 0, nil
	}
	return 100 * float64(absent) / float64(past), nil
}

// seqWindow bounds the session ordinals that count for a class. Nil bounds
// are open.
type seqWindow struct {
	min *int
	max *int
}

func (w seqWindow) contains(seq int) bool {
	if w.min != nil && seq < *w.min {
		return false
	}
	if w.max != nil && seq > *w.max {
		return false
	}
	return true
}

// resolveWindow maps the enrollment's join/left session references onto seq
// bounds. TRANSFERRED enrollments cap the window at the left session;
// ENROLLED enrollments floor it at the join session.
func (s *TimelineService) resolveWindow(ctx context.Context, studentID, classID string) (seqWindow, error) {
	window := seqWindow{}
	enrollments, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, ClassID: classID})
	if err != nil {
		return window, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return window, nil
	}
	enrollment := enrollments[0]

	switch enrollment.Status {
	case models.EnrollmentStatusTransferred:
		if enrollment.LeftSessionID != nil {
			seq, err := s.sessionSeq(ctx, *enrollment.LeftSessionID)
			if err != nil {
				return window, err
			}
			if seq != nil {
				window.max = seq
			}
		}
	case models.EnrollmentStatusEnrolled:
		if enrollment.JoinSessionID != nil {
			seq, err := s.sessionSeq(ctx, *enrollment.JoinSessionID)
			if err != nil {
				return window, err
			}
			if seq != nil {
				window.min = seq
			}
		}
	}
	return window, nil
}

func (s *TimelineService) sessionSeq(ctx context.Context, sessionID string) (*int, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load boundary session")
	}
	seq := session.Seq
	return &seq, nil
}

func deriveOutcome(row models.AttendanceRow, today time.Time) models.AttendanceOutcome {
	if row.Status != nil {
		switch *row.Status {
		case models.AttendancePresent:
			return models.OutcomePresent
		case models.AttendanceAbsent:
			return models.OutcomeAbsent
		case models.AttendanceExcused:
			return models.OutcomeExcused
		}
	}
	// PLANNED or unmarked: past sessions count as absent, the rest are
	// upcoming.
	if truncateToDay(row.SessionDate).Before(today) {
		return models.OutcomeAbsent
	}
	return models.OutcomeUpcoming
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
